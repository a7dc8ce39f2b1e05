package api

import (
	"net/http"
	"time"

	"gw-lending/internal/api/handlers"
	"gw-lending/internal/api/middleware"
	"gw-lending/internal/metrics"
	"gw-lending/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter настраивает и возвращает роутер с всеми эндпоинтами
func SetupRouter(
	lendingService *service.LendingService,
	sessions handlers.Sessions,
	jwtMiddleware *middleware.JWTMiddleware,
	m *metrics.Metrics,
	logger *logrus.Logger,
	ginMode string,
	tokenTTL time.Duration,
) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Metrics(m))
	router.Use(middleware.Logger(logger))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Инициализация handlers
	walletHandler := handlers.NewWalletHandler(lendingService, sessions, jwtMiddleware, tokenTTL, logger)
	lendingHandler := handlers.NewLendingHandler(lendingService, logger)
	receiptHandler := handlers.NewReceiptHandler(lendingService, jwtMiddleware, tokenTTL, logger)

	v1 := router.Group("/api/v1")
	{
		// Public routes (без авторизации)
		v1.POST("/connect", walletHandler.Connect)
		v1.GET("/currencies", lendingHandler.ListCurrencies)
		v1.GET("/banks", lendingHandler.ListBanks)
		v1.POST("/reviewers/login", receiptHandler.Login)
		v1.POST("/reviewers/register", jwtMiddleware.ReviewerAuth(), receiptHandler.Register)

		// Кошелек
		wallet := v1.Group("")
		wallet.Use(jwtMiddleware.WalletAuth())
		{
			wallet.POST("/disconnect", walletHandler.Disconnect)
			wallet.GET("/balance", walletHandler.GetBalance)
			wallet.GET("/allowance", walletHandler.GetAllowance)
			wallet.POST("/approve", walletHandler.Approve)

			wallet.POST("/deposit", lendingHandler.Deposit)
			wallet.POST("/supply", lendingHandler.Supply)
			wallet.GET("/borrow/limit", lendingHandler.GetBorrowLimit)
			wallet.POST("/borrow", lendingHandler.Borrow)

			wallet.GET("/positions", lendingHandler.ListPositions)
			wallet.GET("/positions/:id", lendingHandler.GetPosition)
			wallet.POST("/positions/:id/repay", lendingHandler.Repay)
			wallet.GET("/positions/:id/receipts", receiptHandler.PositionReceipts)
			wallet.POST("/positions/:id/receipts", receiptHandler.Submit)
			wallet.GET("/receipts", receiptHandler.Mine)

			wallet.GET("/operations", lendingHandler.ListOperations)
			wallet.GET("/operations/:id", lendingHandler.GetOperation)
		}

		// Операторы
		review := v1.Group("/review")
		review.Use(jwtMiddleware.ReviewerAuth())
		{
			review.GET("/receipts", receiptHandler.List)
			review.POST("/receipts/:id/start", receiptHandler.StartReview)
			review.POST("/receipts/:id/verify", receiptHandler.Verify)
			review.POST("/receipts/:id/reject", receiptHandler.Reject)
		}
	}

	return router
}
