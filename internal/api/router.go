package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facebot/internal/api/handlers"
	"github.com/your-org/facebot/internal/api/ws"
	"github.com/your-org/facebot/internal/auth"
	"github.com/your-org/facebot/internal/storage"
)

type RouterConfig struct {
	APIKey        string
	WebhookSecret string
	GatewayURL    string
	FacesBucket   string
	PhotosBucket  string

	Checks   map[string]handlers.Check
	Sessions storage.SessionFactory
	Objects  handlers.ObjectGetter
	Events   handlers.EventPublisher
	Trigger  handlers.EventTrigger
	Bot      handlers.UpdateHandler
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public photo gateway: the URLs sent to the chat
	gatewayH := handlers.NewGatewayHandler(cfg.Objects, cfg.FacesBucket, cfg.PhotosBucket)
	r.GET("/face/:id", gatewayH.Face)
	r.GET("/photo/:id", gatewayH.Photo)

	v1 := r.Group("/v1")

	// Bot webhook (secret token)
	if cfg.Bot != nil {
		botH := handlers.NewBotHandler(cfg.Bot)
		v1.POST("/bot/webhook", auth.WebhookSecretMiddleware(cfg.WebhookSecret), botH.Webhook)
	}

	// API v1 (with auth)
	authed := v1.Group("")
	authed.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		authed.GET("/ws", cfg.Hub.HandleWS)
	}

	if cfg.Trigger != nil {
		ingestH := handlers.NewIngestHandler(cfg.Trigger, cfg.PhotosBucket)
		authed.POST("/events/storage", ingestH.StorageEvent)
	}

	faceH := handlers.NewFaceHandler(cfg.Sessions, cfg.Events, cfg.GatewayURL)
	authed.GET("/faces/unnamed", faceH.Unnamed)
	authed.GET("/persons/:name/photos", faceH.PersonPhotos)
	authed.PUT("/faces/:faceId/person", faceH.Label)

	return r
}
