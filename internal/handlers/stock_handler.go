package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// AdjustStockRequest is a manual stock correction. Unlike sales, a
// manual adjustment may drive stock negative: it is an authoritative
// recount.
type AdjustStockRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
	Reference string `json:"reference"`
}

// --- POST: /api/stock/adjust ---
func (a *API) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	movement, err := a.Ledger.Adjust(c.Request.Context(), ledger.Adjustment{
		ProductID:  req.ProductID,
		Delta:      req.Quantity,
		Type:       models.MovementAdjustment,
		Reason:     req.Reason,
		EmployeeID: c.GetString("employeeID"),
		Reference:  req.Reference,
		Source:     "manual",
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Remote store unavailable"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to adjust stock"})
	default:
		c.JSON(http.StatusOK, movement)
	}
}

// --- GET: /api/stock/movements?product_id=... ---
func (a *API) GetStockMovements(c *gin.Context) {
	movements, err := a.Ledger.Movements(c.Request.Context(), c.Query("product_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock movements"})
		return
	}
	c.JSON(http.StatusOK, movements)
}
