package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// ReportData defines the shape of our analytics response
type ReportData struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int             `json:"total_orders"`
	TopSelling   []TopSeller     `json:"top_selling"`
	RecentSales  []models.Sale   `json:"recent_sales"`
}

type TopSeller struct {
	ProductName string          `json:"product_name"`
	Sold        int             `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// --- GET: /api/reports/sales ---
// Aggregated over sale documents; the store port has no server-side
// aggregation, so the rollup happens here.
func (a *API) GetSalesReport(c *gin.Context) {
	var sales []models.Sale
	if err := a.Store.List(c.Request.Context(), store.Sales, nil, &sales); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sales"})
		return
	}

	var data ReportData
	data.TotalRevenue = decimal.Zero
	data.TotalOrders = len(sales)

	type rollup struct {
		sold    int
		revenue decimal.Decimal
	}
	byProduct := make(map[string]*rollup)
	for _, sale := range sales {
		data.TotalRevenue = data.TotalRevenue.Add(sale.Total)
		for _, item := range sale.Items {
			r, ok := byProduct[item.Product.Name]
			if !ok {
				r = &rollup{revenue: decimal.Zero}
				byProduct[item.Product.Name] = r
			}
			r.sold += item.Quantity
			r.revenue = r.revenue.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	data.TopSelling = make([]TopSeller, 0, len(byProduct))
	for name, r := range byProduct {
		data.TopSelling = append(data.TopSelling, TopSeller{ProductName: name, Sold: r.sold, Revenue: r.revenue})
	}
	sort.Slice(data.TopSelling, func(i, j int) bool { return data.TopSelling[i].Sold > data.TopSelling[j].Sold })
	if len(data.TopSelling) > 5 {
		data.TopSelling = data.TopSelling[:5]
	}

	// Last 10 sales, newest first
	sort.Slice(sales, func(i, j int) bool { return sales[i].Timestamp.After(sales[j].Timestamp) })
	if len(sales) > 10 {
		sales = sales[:10]
	}
	data.RecentSales = sales

	c.JSON(http.StatusOK, data)
}
