package cmd

import (
	"marketplace-svc/auth"
	"marketplace-svc/commission"
	"marketplace-svc/handlers"
	"marketplace-svc/idgen"
	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type routerDeps struct {
	serviceName string
	logger      *zap.Logger
	issuer      *auth.Issuer
	ledger      *ledger.Ledger
	calc        *commission.Calculator
	users       store.UserStore
	listings    store.ListingStore
	ids         *idgen.Generator
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(d.serviceName))
	router.Use(middleware.LoggerMiddleware(d.logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	paymentHandler := handlers.NewPaymentHandler(d.ledger, d.logger)
	router.POST("/create-payment-intent", paymentHandler.CreatePaymentIntent)
	router.POST("/confirm-payment", paymentHandler.ConfirmPayment)
	router.GET("/payment-intents/:id", paymentHandler.GetPaymentIntent)

	commissionHandler := handlers.NewCommissionHandler(d.calc, d.logger)
	router.POST("/calculate-commission", commissionHandler.CalculateCommission)
	router.GET("/commission-rates", commissionHandler.GetRates)

	authHandler := handlers.NewAuthHandler(d.users, d.issuer, d.ids, d.logger)
	api := router.Group("/api")
	api.POST("/signup", authHandler.Signup)
	api.POST("/login", authHandler.Login)
	api.GET("/user", authHandler.GetUserByEmail)

	authed := api.Group("", middleware.JWTAuth(d.issuer))
	authed.GET("/profile", authHandler.GetProfile)
	authed.PUT("/profile", authHandler.UpdateProfile)
	authed.DELETE("/profile", authHandler.DeleteProfile)
	authed.PUT("/change-password", authHandler.ChangePassword)

	listingHandler := handlers.NewListingHandler(d.listings, d.calc, d.ids, d.logger)
	seller := authed.Group("/seller", middleware.RequireRole(string(models.UserTypeSeller)))
	seller.POST("/listings", listingHandler.CreateListing)
	seller.GET("/listings", listingHandler.GetListings)
	seller.PUT("/listings/:id", listingHandler.UpdateListing)
	seller.DELETE("/listings/:id", listingHandler.DeleteListing)
	seller.PUT("/listings/:id/premium", listingHandler.SetPremium)
	seller.GET("/analytics", listingHandler.GetAnalytics)
	seller.GET("/premium-stats", listingHandler.GetPremiumStats)

	return router
}
