// Read-only query API over the per-instrument books. Every handler reads
// through the book's single consistency boundary; the batched endpoint uses
// one lock acquisition for the BBO plus all depth tiers.

package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/orbitcex/depthbook/internal/orderbook"
	"github.com/orbitcex/depthbook/internal/sequencer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router     *gin.Engine
	manager    *orderbook.Manager
	group      *sequencer.Group
	depthTiers []float64
	logger     *zap.Logger
}

func NewServer(logger *zap.Logger, manager *orderbook.Manager, group *sequencer.Group, depthTiers []float64, reg *prometheus.Registry) *Server {
	s := &Server{
		manager:    manager,
		group:      group,
		depthTiers: depthTiers,
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.GET("/bbo/:instrument", s.handleBBO)
	v1.GET("/depth/:instrument", s.handleDepth)
	v1.GET("/book/:instrument", s.handleBook)

	s.router = router
	return s
}

// Router exposes the handler for the http.Server in cmd.
func (s *Server) Router() http.Handler {
	return s.router
}

type bboResponse struct {
	Instrument string   `json:"instrument"`
	Sequence   uint64   `json:"sequence"`
	BidPrice   *float64 `json:"bid_price"`
	BidSize    *float64 `json:"bid_size"`
	AskPrice   *float64 `json:"ask_price"`
	AskSize    *float64 `json:"ask_size"`
}

type depthResponse struct {
	Pct      float64 `json:"pct"`
	BidCount int     `json:"bid_count"`
	BidSize  float64 `json:"bid_size"`
	AskCount int     `json:"ask_count"`
	AskSize  float64 `json:"ask_size"`
}

func (s *Server) handleHealth(c *gin.Context) {
	states := make(map[string]string)
	healthy := true
	for _, ins := range s.manager.Instruments() {
		seq, ok := s.group.Sequencer(ins)
		if !ok {
			continue
		}
		st := seq.State()
		states[ins] = st.String()
		if st != sequencer.StateSynced {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"instruments": states})
}

func (s *Server) handleBBO(c *gin.Context) {
	book, ok := s.manager.Book(c.Param("instrument"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}
	bbo := book.BBO()
	c.JSON(http.StatusOK, bboResponse{
		Instrument: book.Instrument(),
		Sequence:   book.LastSequence(),
		BidPrice:   jsonFloat(bbo.BidPrice),
		BidSize:    jsonFloat(bbo.BidSize),
		AskPrice:   jsonFloat(bbo.AskPrice),
		AskSize:    jsonFloat(bbo.AskSize),
	})
}

// handleDepth serves one or more depth tiers. Without pct parameters the
// configured tiers are used; all tiers plus the BBO come from one pass.
func (s *Server) handleDepth(c *gin.Context) {
	book, ok := s.manager.Book(c.Param("instrument"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}
	pcts := s.depthTiers
	if raw, found := c.GetQueryArray("pct"); found {
		pcts = make([]float64, 0, len(raw))
		for _, r := range raw {
			pct, err := strconv.ParseFloat(r, 64)
			if err != nil || pct <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad pct " + r})
				return
			}
			pcts = append(pcts, pct)
		}
	}
	bbo, depths := book.BBOAndDepths(pcts)
	out := make([]depthResponse, len(depths))
	for i, d := range depths {
		out[i] = depthResponse{
			Pct: d.Pct, BidCount: d.BidCount, BidSize: d.BidSize,
			AskCount: d.AskCount, AskSize: d.AskSize,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument": book.Instrument(),
		"sequence":   book.LastSequence(),
		"bid_price":  jsonFloat(bbo.BidPrice),
		"ask_price":  jsonFloat(bbo.AskPrice),
		"depths":     out,
	})
}

func (s *Server) handleBook(c *gin.Context) {
	book, ok := s.manager.Book(c.Param("instrument"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}
	snap := book.Snapshot()
	body, err := snap.MarshalJSONBuffer()
	if err != nil {
		s.logger.Error("snapshot serialization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// jsonFloat maps NaN (empty book side) to null, which JSON can carry.
func jsonFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
