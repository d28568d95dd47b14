package main

import (
	"log"
	"os"

	_ "salescore/api/swagger" // swagger docs
	"salescore/internal/database"
	"salescore/internal/handler"
	"salescore/internal/ledger"
	"salescore/internal/middleware"
	"salescore/internal/repository"
	"salescore/internal/service"
	"salescore/internal/tax"
	"salescore/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Pricing & Reservation Core API
// @version         1.0
// @description     Tax-split line pricing, stock reservation ledger and commitment lifecycle for the sales suite.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "postgres")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Repositories
	txManager := repository.NewTransactionManager(db)
	productRepo := repository.NewProductRepository(db)
	commitmentRepo := repository.NewCommitmentRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)

	// Ledger core
	reservationLedger := ledger.New(productRepo, commitmentRepo, movementRepo, txManager)
	resolver := ledger.NewAvailabilityResolver(productRepo, commitmentRepo)

	// Tenant billing default (INCLUSIVE_GST / EXCLUSIVE_GST / NO_GST)
	defaultMode := tax.NormalizeBillingMode(os.Getenv("DEFAULT_BILLING_MODE"), tax.BillingExclusiveGST)

	// Services
	quoteService := service.NewQuoteService(productRepo, defaultMode)
	productService := service.NewProductService(productRepo, movementRepo, resolver, auditRepo, txManager)
	approvalService := service.NewApprovalService(approvalRepo, auditRepo, txManager, reservationLedger)
	auditService := service.NewAuditService(auditRepo)
	lifecycleService := service.NewCommitmentLifecycleService(
		reservationLedger, resolver, commitmentRepo, approvalService, auditRepo, txManager, wsHub)

	// Handlers
	quoteHandler := handler.NewQuoteHandler(quoteService)
	productHandler := handler.NewProductHandler(productService)
	eventHandler := handler.NewEventHandler(lifecycleService)
	approvalHandler := handler.NewApprovalHandler(approvalService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	quoteHandler.RegisterRoutes(router.Group(""))
	productHandler.RegisterRoutes(router.Group(""))
	eventHandler.RegisterRoutes(router.Group(""))
	approvalHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := envOr("PORT", "8080")

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
