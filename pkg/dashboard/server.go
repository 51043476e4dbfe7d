package dashboard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-engine/pkg/config"
	"github.com/sentinel-engine/pkg/db"
	"github.com/sentinel-engine/pkg/fetcher"
	"github.com/sentinel-engine/pkg/ingress"
	"github.com/sentinel-engine/pkg/models"
	"github.com/sentinel-engine/pkg/publisher"
	"github.com/sentinel-engine/pkg/tracker"
)

// Server is the operator surface: a JSON API over the live tracker state
// plus the webhook ingress endpoints and a websocket event stream.
type Server struct {
	cfg     *config.Config
	tracker *tracker.Tracker
	store   *db.Store
	credits *fetcher.Credits
	pub     *publisher.Publisher
	ingress *ingress.Ingress
	hub     *Hub

	started time.Time
}

func NewServer(cfg *config.Config, tr *tracker.Tracker, store *db.Store, credits *fetcher.Credits, pub *publisher.Publisher, ing *ingress.Ingress) *Server {
	return &Server{
		cfg:     cfg,
		tracker: tr,
		store:   store,
		credits: credits,
		pub:     pub,
		ingress: ing,
		hub:     NewHub(),
		started: time.Now(),
	}
}

// Hub exposes the websocket broadcaster so main can push signal events.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/tokens", s.handleTokens)
		api.GET("/tokens/:addr", s.handleToken)
		api.GET("/tokens/:addr/why", s.handleWhy)
		api.GET("/signals", s.handleSignals)
		api.GET("/credits", s.handleCredits)
	}

	r.POST("/webhook/kol-buy", s.handleKOLBuyWebhook)
	r.POST("/webhook/telegram-call", s.handleCallWebhook)

	r.GET("/ws", s.hub.Subscribe)
	go s.hub.Run()

	addr := fmt.Sprintf(":%d", s.cfg.DashboardPort)
	log.Info().Str("addr", addr).Msg("🌐 dashboard started")
	return r.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.pub.Health()
	status := "ok"
	if health.Degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"uptime_seconds":    time.Since(s.started).Seconds(),
		"tracking":          s.tracker.Len(),
		"publisher_enabled": s.pub.Enabled(),
		"publisher":         health,
		"credits_used":      s.credits.Total(),
		"webhook_tx_seen":   s.ingress.SeenTxCount(),
	})
}

func (s *Server) handleTokens(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshots())
}

func (s *Server) handleToken(c *gin.Context) {
	snap, ok := s.tracker.Get(c.Param("addr"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not tracked"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleWhy surfaces the near-miss diagnostic for a token: what the last
// scoring pass lacked and which penalties bit.
func (s *Server) handleWhy(c *gin.Context) {
	snap, ok := s.tracker.Get(c.Param("addr"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not tracked"})
		return
	}
	b := snap.Breakdown
	resp := gin.H{
		"score":     b.FinalScore,
		"threshold": b.Threshold,
		"passed":    b.Passed,
	}
	switch {
	case b.DataQualityFailed:
		resp["blocked_by"] = "data_quality"
		resp["reason"] = b.QualityReason
	case b.EmergencyStopped:
		resp["blocked_by"] = "emergency_stop"
		resp["reason"] = b.StopReason
	case b.MCAPCapped:
		resp["blocked_by"] = "mcap_cap"
	case b.WhyNoSignal != nil:
		resp["diagnostic"] = b.WhyNoSignal
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSignals(c *gin.Context) {
	sigs, err := s.store.RecentSignals(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sigs == nil {
		sigs = []models.Signal{}
	}
	c.JSON(http.StatusOK, sigs)
}

func (s *Server) handleCredits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"by_provider":  s.credits.Snapshot(),
		"total":        s.credits.Total(),
		"daily_budget": s.cfg.CreditDailyBudget,
	})
}

func (s *Server) handleKOLBuyWebhook(c *gin.Context) {
	var ev models.KOLBuyEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ingress.HandleKOLBuy(ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleCallWebhook(c *gin.Context) {
	var ev models.TelegramCallEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ingress.HandleTelegramCall(ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
