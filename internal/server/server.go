package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shoptrail/shoptrail-worker/internal/service"
)

// Ingestor accepts webhook deliveries
type Ingestor interface {
	Ingest(ctx context.Context, delivery service.Delivery) (*service.IngestResult, error)
}

// Syncer runs on-demand order syncs
type Syncer interface {
	SyncOrders(ctx context.Context, shopDomain string, opts service.SyncOptions) (*service.SyncSummary, error)
}

// Recomputer rebuilds daily metrics on demand
type Recomputer interface {
	Recompute(ctx context.Context, shopDomain string, from, to time.Time) (int, error)
}

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	ingestor   Ingestor
	syncer     Syncer
	recomputer Recomputer
	pinger     Pinger
}

func New(ingestor Ingestor, syncer Syncer, recomputer Recomputer, pinger Pinger) *Server {
	return &Server{
		ingestor:   ingestor,
		syncer:     syncer,
		recomputer: recomputer,
		pinger:     pinger,
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/webhooks/shopify", s.handleWebhook)
	router.POST("/admin/sync", s.handleSync)
	router.POST("/admin/recompute", s.handleRecompute)
	router.GET("/healthz", s.handleHealth)

	return router
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	delivery := service.Delivery{
		Topic:      c.GetHeader("X-Shopify-Topic"),
		ShopDomain: c.GetHeader("X-Shopify-Shop-Domain"),
		DeliveryID: c.GetHeader("X-Shopify-Webhook-Id"),
		Signature:  c.GetHeader("X-Shopify-Hmac-Sha256"),
		RawBody:    body,
	}
	if delivery.Topic == "" || delivery.ShopDomain == "" || delivery.DeliveryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing webhook headers"})
		return
	}

	result, err := s.ingestor.Ingest(c.Request.Context(), delivery)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, service.ErrUnknownShop):
			// 410 tells the platform to stop delivering for this shop
			c.JSON(http.StatusGone, gin.H{"error": "unknown shop"})
		case errors.Is(err, service.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		default:
			log.Printf("Webhook processing failed for delivery %s: %v", delivery.DeliveryID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"deduped": result.Deduped})
}

type syncRequest struct {
	ShopDomain string     `json:"shop_domain" binding:"required"`
	Since      *time.Time `json:"since"`
	MaxOrders  int        `json:"max_orders"`
}

func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := s.syncer.SyncOrders(c.Request.Context(), req.ShopDomain, service.SyncOptions{
		Since:     req.Since,
		MaxOrders: req.MaxOrders,
	})
	if err != nil {
		log.Printf("On-demand sync failed for shop %s: %v", req.ShopDomain, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type recomputeRequest struct {
	ShopDomain string `json:"shop_domain" binding:"required"`
	From       string `json:"from" binding:"required"`
	To         string `json:"to" binding:"required"`
}

func (s *Server) handleRecompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, expected YYYY-MM-DD"})
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, expected YYYY-MM-DD"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not precede from"})
		return
	}

	rows, err := s.recomputer.Recompute(c.Request.Context(), req.ShopDomain, from, to)
	if err != nil {
		log.Printf("On-demand recompute failed for shop %s: %v", req.ShopDomain, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shop_domain": req.ShopDomain,
		"from":        req.From,
		"to":          req.To,
		"rows":        rows,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
