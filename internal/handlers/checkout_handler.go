package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ClaudeNdayambaje/payesmart1/internal/checkout"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// CheckoutRequest defines what the frontend sends us
type CheckoutRequest struct {
	Items          []models.CartItem   `json:"items" binding:"required"`
	PaymentMethod  string              `json:"payment_method" binding:"required"`
	AmountReceived decimal.Decimal     `json:"amount_received"`
	LoyaltyCard    *models.LoyaltyCard `json:"loyalty_card,omitempty"`
}

// --- POST: /api/checkout ---
func (a *API) ProcessCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	outcome, err := a.Checkout.FinalizeCheckout(c.Request.Context(), checkout.Request{
		Items:          req.Items,
		PaymentMethod:  req.PaymentMethod,
		AmountReceived: req.AmountReceived,
		EmployeeID:     c.GetString("employeeID"),
		LoyaltyCard:    req.LoyaltyCard,
	})

	switch {
	case err == nil:
		// Settled or PartiallySettled: the sale stands either way.
		c.JSON(http.StatusOK, outcome)
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, checkout.ErrDuplicateReceipt):
		c.JSON(http.StatusBadRequest, outcome)
	case errors.Is(err, store.ErrUnavailable):
		// Aborted: no sale exists, the cart is preserved for retry.
		c.JSON(http.StatusServiceUnavailable, outcome)
	default:
		c.JSON(http.StatusInternalServerError, outcome)
	}
}
