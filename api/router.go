package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	"studiobook/auth"
	"studiobook/config"
	"studiobook/db"
	"studiobook/docs"
	"studiobook/events"
)

// SetupRouter registers every route on a new Gin engine.
func SetupRouter(database *db.Database, gate *auth.Gate, hub *events.Hub, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())

	bookingLimiter := NewRateLimiter(cfg.HTTP.BookingRatePerMinute, cfg.HTTP.BookingBurst)

	router.GET("/health", func(c *gin.Context) {
		HealthHandler(c, cfg)
	})

	// --- Public Routes ---
	router.GET("/services", func(c *gin.Context) {
		ListServicesHandler(c, database, cfg)
	})
	router.GET("/services/:id", func(c *gin.Context) {
		GetServiceHandler(c, database, cfg)
	})
	router.GET("/videos", func(c *gin.Context) {
		ListVideosHandler(c, database, cfg)
	})
	router.GET("/booking/slots", func(c *gin.Context) {
		GetSlotsHandler(c, database, cfg)
	})
	// POST /bookings is the only anonymous write, so it is rate limited per client.
	router.POST("/bookings", bookingLimiter.Limit(), func(c *gin.Context) {
		CreateBookingHandler(c, database, cfg)
	})

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			LoginHandler(c, gate, cfg)
		})
		authGroup.GET("/session", func(c *gin.Context) {
			SessionHandler(c, gate, cfg)
		})
		authGroup.POST("/logout", gate.Guard(), func(c *gin.Context) {
			LogoutHandler(c, gate, cfg)
		})
	}

	// --- Admin Routes (Auth Required) ---
	adminGroup := router.Group("/admin")
	adminGroup.Use(gate.Guard())
	{
		adminGroup.GET("/dashboard", func(c *gin.Context) {
			DashboardHandler(c, database, cfg)
		})
		adminGroup.GET("/events", func(c *gin.Context) {
			EventsHandler(c, hub)
		})

		adminGroup.POST("/services", func(c *gin.Context) {
			CreateServiceHandler(c, database, cfg)
		})
		adminGroup.PUT("/services/:id", func(c *gin.Context) {
			UpdateServiceHandler(c, database, cfg)
		})
		adminGroup.DELETE("/services/:id", func(c *gin.Context) {
			DeleteServiceHandler(c, database, cfg)
		})

		adminGroup.POST("/videos", func(c *gin.Context) {
			CreateVideoHandler(c, database, cfg)
		})
		adminGroup.PUT("/videos/:id", func(c *gin.Context) {
			UpdateVideoHandler(c, database, cfg)
		})
		adminGroup.DELETE("/videos/:id", func(c *gin.Context) {
			DeleteVideoHandler(c, database, cfg)
		})

		bookingGroup := adminGroup.Group("/bookings")
		{
			bookingGroup.GET("", func(c *gin.Context) {
				GetBookingsHandler(c, database, cfg)
			})
			bookingGroup.GET("/:id", func(c *gin.Context) {
				GetBookingHandler(c, database, cfg)
			})
			bookingGroup.PUT("/:id", func(c *gin.Context) {
				UpdateBookingHandler(c, database, cfg)
			})
			bookingGroup.PATCH("/:id/status", func(c *gin.Context) {
				UpdateBookingStatusHandler(c, database, cfg)
			})
			bookingGroup.DELETE("/:id", func(c *gin.Context) {
				DeleteBookingHandler(c, database, cfg)
			})
			bookingGroup.GET("/:id/qrcode", func(c *gin.Context) {
				GetBookingQRCodeHandler(c, database, cfg)
			})
		}
	}

	// --- Swagger Route ---
	router.GET("/docs/swagger.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", docs.SwaggerJSON)
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	return router
}

// NewHandler wraps the router with the CORS policy for the booking site's origins.
func NewHandler(router http.Handler, cfg *config.Config) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}).Handler(router)
}
