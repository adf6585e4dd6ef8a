package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Hamlet/internal/adapters/signal"
	"github.com/dkeye/Hamlet/internal/app/orch"
	"github.com/dkeye/Hamlet/internal/auth"
	"github.com/dkeye/Hamlet/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const deviceKey = "device"

// DeviceMiddleware pins a random device id to the browser session so log
// lines from several tabs of one user can be told apart.
func DeviceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		device, _ := s.Get(deviceKey).(string)
		if device == "" {
			device = uuid.NewString()
			s.Set(deviceKey, device)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(deviceKey, device)
		c.Next()
	}
}

// AuthMiddleware rejects requests without a valid credential before any
// handler, including the websocket upgrade, runs.
func AuthMiddleware(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := v.FromRequest(c.Request)
		if err != nil {
			log.Debug().Str("module", "adapters.http").Str("path", c.FullPath()).Str("ip", c.ClientIP()).Msg("unauthenticated")
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(err))
			return
		}
		c.Set(signal.UserKey, uid)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, v *auth.Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HamletSessions", store))
	r.Use(DeviceMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("client", cfg.ClientURL).Msg("router setup")

	h := &Handlers{Orch: o}
	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/presence", h.Presence)

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		InviteLimit:    cfg.InviteLimit,
		InviteWindow:   cfg.InviteWindow,
		AllowedOrigins: []string{cfg.ClientURL},
	})

	authed := api.Group("", AuthMiddleware(v))
	authed.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("device", c.GetString(deviceKey)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	authed.POST("/messages", h.SendMessage)
	authed.POST("/messages/read", h.MarkRead)
	authed.POST("/posts/:id/like", h.ToggleLike)
	authed.POST("/posts/:id/comments", h.Comment)
	authed.POST("/users/:id/follow", h.ToggleFollow)

	return r
}
