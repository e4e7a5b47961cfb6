package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ClaudeNdayambaje/payesmart1/internal/auth"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	var employees []models.Employee
	err := a.Store.List(c.Request.Context(), store.Employees, map[string]any{"username": input.Username}, &employees)
	if err != nil || len(employees) == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	employee := employees[0]
	if !employee.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(employee.ID, employee.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"role":     employee.Role,
		"username": employee.Username,
	})
}

// Register only exists behind the ALLOW_REGISTRATION flag; it seeds the
// first admin account on a fresh install.
func (a *API) Register(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	var existing []models.Employee
	if err := a.Store.List(c.Request.Context(), store.Employees, map[string]any{"username": input.Username}, &existing); err == nil && len(existing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	employee := models.Employee{
		ID:           uuid.NewString(),
		Username:     input.Username,
		PasswordHash: string(hashedPassword),
		Role:         "admin",
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if _, err := a.Store.Create(c.Request.Context(), store.Employees, employee); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
}
