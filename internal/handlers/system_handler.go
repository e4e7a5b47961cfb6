package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
	"github.com/ClaudeNdayambaje/payesmart1/internal/utils"
)

type LicenseRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
}

// GetSystemStatus feeds the activation screen the terminal id so the
// client can request a key for this exact machine.
func (a *API) GetSystemStatus(c *gin.Context) {
	s := a.Settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"terminal_id":     utils.TerminalID(),
		"license_active":  s.LicenseActive,
		"license_expires": s.LicenseExpires,
	})
}

// ActivateLicense checks the provided key against the contract stages
// bound to this terminal's hardware id.
func (a *API) ActivateLicense(c *gin.Context) {
	var req LicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	terminalID := utils.TerminalID()
	const secretSalt = "PAYESMART-LICENSE-SECRET"

	stages := map[string]time.Time{
		"TRIAL":    time.Now().AddDate(0, 1, 0),
		"ANNUAL":   time.Now().AddDate(1, 0, 0),
		"LIFETIME": time.Date(2099, 12, 31, 23, 59, 59, 0, time.Local),
	}

	var matchedExpiration time.Time
	var matchedStage string
	isValid := false
	for stage, expires := range stages {
		hash := sha256.Sum256([]byte(terminalID + stage + secretSalt))
		expectedKey := stage + "-" + strings.ToUpper(hex.EncodeToString(hash[:])[:12])
		if req.LicenseKey == expectedKey {
			isValid = true
			matchedExpiration = expires
			matchedStage = stage
			break
		}
	}

	if !isValid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid key for this terminal"})
		return
	}

	err := a.Settings.Set(func(s *settings.Settings) {
		s.LicenseKey = req.LicenseKey
		s.LicenseExpires = matchedExpiration
		s.LicenseActive = true
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist license"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Terminal activated. Stage: " + matchedStage,
		"expires": matchedExpiration,
	})
}
