package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/connectivity ---
func (a *API) GetConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, a.Monitor.State())
}

// --- POST: /api/connectivity/toggle ---
// Flips the persisted manual offline override. While set, probe
// results never flip the mode back.
func (a *API) ToggleConnectivity(c *gin.Context) {
	state, err := a.Monitor.ToggleManualOverride(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist override"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// --- POST: /api/connectivity/sync ---
func (a *API) SyncNow(c *gin.Context) {
	if err := a.Monitor.Sync(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": err.Error(),
			"state": a.Monitor.State(),
		})
		return
	}
	c.JSON(http.StatusOK, a.Monitor.State())
}
