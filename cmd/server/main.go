package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ClaudeNdayambaje/payesmart1/internal/checkout"
	"github.com/ClaudeNdayambaje/payesmart1/internal/connectivity"
	"github.com/ClaudeNdayambaje/payesmart1/internal/events"
	"github.com/ClaudeNdayambaje/payesmart1/internal/handlers"
	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/middleware"
	"github.com/ClaudeNdayambaje/payesmart1/internal/queue"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
	"github.com/ClaudeNdayambaje/payesmart1/internal/utils"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found")
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not found in .env file. Please configure your database.")
	}
	remote, err := store.ConnectMySQL(dsn)
	if err != nil {
		log.Fatal("Failed to connect to the remote store: ", err)
	}
	log.Info("Connected to the remote store")

	settingsPath := envOr("SETTINGS_PATH", "./data/payesmart-settings.json")
	settingsFile, err := settings.Load(settingsPath)
	if err != nil {
		log.Fatal("Failed to load settings: ", err)
	}

	queuePath := envOr("QUEUE_PATH", "./data/pending-operations.json")
	pendingQueue, err := queue.Open(queuePath)
	if err != nil {
		log.Fatal("Failed to open the pending-operations queue: ", err)
	}

	bus := events.NewBus()
	terminalID := utils.TerminalID()
	pollInterval := 30 * time.Second
	if v := os.Getenv("CONNECTIVITY_POLL_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			pollInterval = d
		}
	}

	monitor := connectivity.NewMonitor(remote, settingsFile, pendingQueue, bus, log, pollInterval)
	stockLedger := ledger.New(remote, monitor, bus, log, terminalID)
	orchestrator := checkout.New(remote, stockLedger, pendingQueue, monitor, settingsFile, log, terminalID)
	monitor.SetReplay(orchestrator.ReplayOperation)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go monitor.Run(ctx)

	api := &handlers.API{
		Store:    remote,
		Ledger:   stockLedger,
		Checkout: orchestrator,
		Monitor:  monitor,
		Settings: settingsFile,
		Log:      log,
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{envOr("WEB_ORIGIN", "http://localhost:5173")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": string(monitor.Mode())})
	})
	r.POST("/login", api.Login)

	// Activation must stay reachable while the license is inactive.
	r.GET("/api/system/status", api.GetSystemStatus)
	r.POST("/api/system/activate", api.ActivateLicense)

	// Only opens if we explicitly allow it in .env
	if os.Getenv("ALLOW_REGISTRATION") == "true" {
		r.POST("/register", api.Register)
		log.Warn("Registration route is OPEN. Disable this in production!")
	} else {
		log.Info("Registration route is disabled")
	}

	// --- PROTECTED ROUTES ---
	protected := r.Group("/api")
	protected.Use(middleware.CheckLicense(settingsFile))
	protected.Use(middleware.AuthMiddleware())
	{
		// STAFF & ADMIN
		protected.GET("/products", api.GetProducts)
		protected.GET("/products/scan/:barcode", api.ScanProduct)
		protected.GET("/products/low-stock", api.GetLowStockProducts)
		protected.POST("/checkout", api.ProcessCheckout)
		protected.GET("/connectivity", api.GetConnectivity)
		protected.GET("/stock/movements", api.GetStockMovements)

		// MANAGER & ADMIN
		managed := protected.Group("/")
		managed.Use(middleware.RequireRole("admin", "manager"))
		{
			managed.POST("/products", api.AddProduct)
			managed.PUT("/products/:id", api.UpdateProduct)
			managed.POST("/stock/adjust", api.AdjustStock)
			managed.POST("/connectivity/toggle", api.ToggleConnectivity)
			managed.POST("/connectivity/sync", api.SyncNow)
		}

		// ADMIN ONLY
		admin := protected.Group("/")
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.DELETE("/products/:id", api.DeleteProduct)
			admin.GET("/reports/sales", api.GetSalesReport)
		}
	}

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: r,
	}
	go func() {
		log.Info("Server starting on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start: ", err)
		}
	}()

	// Teardown: cancel the polling task, then drain HTTP.
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown: ", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
