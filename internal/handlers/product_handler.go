package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// --- GET: List all products ---
func (a *API) GetProducts(c *gin.Context) {
	var products []models.Product
	if err := a.Store.List(c.Request.Context(), store.Products, nil, &products); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: Products at or below their low-stock threshold ---
func (a *API) GetLowStockProducts(c *gin.Context) {
	var products []models.Product
	if err := a.Store.List(c.Request.Context(), store.Products, nil, &products); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	low := make([]models.Product, 0)
	for _, p := range products {
		if p.Stock <= p.LowStockThreshold {
			low = append(low, p)
		}
	}
	c.JSON(http.StatusOK, low)
}

// --- POST: Add a new product ---
// The catalog entry is created with zero stock; the initial quantity
// goes through the ledger so the audit trail starts at the beginning.
func (a *API) AddProduct(c *gin.Context) {
	var newProduct models.Product
	if err := c.ShouldBindJSON(&newProduct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	initialStock := newProduct.Stock
	newProduct.Stock = 0
	if newProduct.ID == "" {
		newProduct.ID = uuid.NewString()
	}

	if _, err := a.Store.Create(c.Request.Context(), store.Products, newProduct); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}

	if initialStock > 0 {
		movement, err := a.Ledger.Adjust(c.Request.Context(), ledger.Adjustment{
			ProductID:  newProduct.ID,
			Delta:      initialStock,
			Type:       models.MovementAdjustment,
			Reason:     "Initial stock",
			EmployeeID: c.GetString("employeeID"),
			Source:     "catalog",
		})
		if err != nil {
			a.Log.WithField("module", "handlers").Warn("initial stock adjustment failed: " + err.Error())
		} else {
			newProduct.Stock = movement.NewStock
		}
	}

	c.JSON(http.StatusCreated, newProduct)
}

// --- PUT: Update name, price, promotion... ---
// Stock is deliberately not updatable here; it only moves through the
// ledger (POST /stock/adjust).
func (a *API) UpdateProduct(c *gin.Context) {
	id := c.Param("id")

	var product models.Product
	if err := a.Store.Get(c.Request.Context(), store.Products, id, &product); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	// We use a map so we only update what was sent (partial update)
	var updateData map[string]interface{}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if _, ok := updateData["stock"]; ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Stock cannot be written directly; use /api/stock/adjust"})
		return
	}
	delete(updateData, "id")

	if err := a.Store.Update(c.Request.Context(), store.Products, id, updateData); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}

	if err := a.Store.Get(c.Request.Context(), store.Products, id, &product); err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully"})
}

// --- DELETE: Remove a product ---
func (a *API) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	err := a.Store.Delete(c.Request.Context(), store.Products, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete product"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
	}
}

// --- GET: Look a product up by an already-decoded barcode string ---
func (a *API) ScanProduct(c *gin.Context) {
	barcode := c.Param("barcode")
	var products []models.Product
	err := a.Store.List(c.Request.Context(), store.Products, map[string]any{"barcode": barcode}, &products)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan product"})
		return
	}
	if len(products) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No product with barcode " + barcode})
		return
	}
	c.JSON(http.StatusOK, products[0])
}
