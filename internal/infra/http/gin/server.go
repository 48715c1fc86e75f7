package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"bookingengine/internal/infra/config"
	"bookingengine/internal/infra/obs"
)

type ReservationHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Accept(c *gin.Context)
	Reject(c *gin.Context)
	Cancel(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	History(c *gin.Context)
}

type InventoryHTTP interface {
	Availability(c *gin.Context)
	Summary(c *gin.Context)
	Upsert(c *gin.Context)
	Block(c *gin.Context)
	Remove(c *gin.Context)
	Calendar(c *gin.Context)
	BlockedDates(c *gin.Context)
	Reconcile(c *gin.Context)
}

type VerificationHTTP interface {
	Start(c *gin.Context)
	Get(c *gin.Context)
	Callback(c *gin.Context)
}

type Handlers struct {
	Reservations   ReservationHTTP
	Inventory      InventoryHTTP
	Verification   VerificationHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg.Env, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(env string, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(env)
	binding.EnableDecoderDisallowUnknownFields = true
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Reservations != nil {
		res := api.Group("/reservations")
		res.POST("", h.Reservations.Create)
		res.GET("", h.Reservations.List)
		res.GET("/:id", h.Reservations.Get)
		res.POST("/:id/accept", h.Reservations.Accept)
		res.POST("/:id/reject", h.Reservations.Reject)
		res.POST("/:id/cancel", h.Reservations.Cancel)
		res.PATCH("/:id", h.Reservations.Update)
		res.PUT("/:id", h.Reservations.Update)
		res.DELETE("/:id", h.Reservations.Delete)
		api.GET("/me/reservations", h.Reservations.History)
	}
	if h.Inventory != nil {
		lst := api.Group("/listings/:id")
		lst.GET("/availability", h.Inventory.Availability)
		lst.GET("/calendar", h.Inventory.Calendar)
		lst.GET("/blocked-dates", h.Inventory.BlockedDates)
		lst.GET("/inventory", h.Inventory.Summary)
		lst.POST("/inventory", h.Inventory.Upsert)
		lst.POST("/inventory/blocks", h.Inventory.Block)
		lst.DELETE("/inventory/:entryId", h.Inventory.Remove)
		api.POST("/admin/ledger/reconcile", h.Inventory.Reconcile)
	}
	if h.Verification != nil {
		api.POST("/verifications", h.Verification.Start)
		api.GET("/verifications/:state", h.Verification.Get)
		api.POST("/verifications/:state/callback", h.Verification.Callback)
	}

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "ROUTE_NOT_FOUND", "route not found")
	})
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

var (
	_ ReservationHTTP  = ReservationHandler{}
	_ InventoryHTTP    = InventoryHandler{}
	_ VerificationHTTP = VerificationHandler{}
)
