// Package statusapi serves a read-only operator view over HTTP: watcher,
// pipeline and fill-feed counters plus the most recent journal rows.
package statusapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/followbot/gofollow/internal/copytrade"
	"github.com/followbot/gofollow/internal/fills"
	"github.com/followbot/gofollow/internal/journal"
	"github.com/followbot/gofollow/internal/mempool"
)

// WatcherStats is satisfied by *mempool.Watcher.
type WatcherStats interface {
	Stats() mempool.Stats
}

// PipelineStats is satisfied by *copytrade.Pipeline.
type PipelineStats interface {
	Stats() (processed, placed, skipped int)
}

// FillStats is satisfied by *fills.Feed.
type FillStats interface {
	Stats() fills.Stats
}

// ResolverStats is satisfied by *markets.Resolver.
type ResolverStats interface {
	CacheSize() int
}

// JournalReader is satisfied by *journal.Store.
type JournalReader interface {
	Counts(ctx context.Context) (journal.Counts, error)
	RecentFills(ctx context.Context, limit int) ([]copytrade.FillRecord, error)
	RecentPlacements(ctx context.Context, limit int) ([]copytrade.PlacementRecord, error)
}

// Sources are the live components the API reads from. Any field may be nil;
// the matching section is then omitted from the payload and its routes
// answer 404.
type Sources struct {
	Watcher  WatcherStats
	Pipeline PipelineStats
	Fills    FillStats
	Markets  ResolverStats
	Journal  JournalReader
}

// Server owns the route handlers. Plug Router into an http.Server.
type Server struct {
	src     Sources
	started time.Time
}

func New(src Sources) *Server {
	return &Server{src: src, started: time.Now()}
}

// Router builds the gin handler tree.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/fills/recent", s.handleRecentFills)
	api.GET("/placements/recent", s.handleRecentPlacements)

	return r
}

type watcherStatus struct {
	State              string            `json:"state"`
	TxSeen             uint64            `json:"tx_seen"`
	CandidatesAdmitted uint64            `json:"candidates_admitted"`
	DecodeFailures     uint64            `json:"decode_failures"`
	EventsPublished    uint64            `json:"events_published"`
	Reconnects         uint64            `json:"reconnects"`
	LastBlock          uint64            `json:"last_block"`
	RecencySize        int               `json:"recency_size"`
	Selectors          map[string]uint64 `json:"selectors,omitempty"`
}

type pipelineStatus struct {
	Processed int `json:"processed"`
	Placed    int `json:"placed"`
	Skipped   int `json:"skipped"`
}

type fillsStatus struct {
	LogsSeen     uint64 `json:"logs_seen"`
	FillsMatched uint64 `json:"fills_matched"`
}

type marketsStatus struct {
	CacheSize int `json:"cache_size"`
}

type statusResponse struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	Watcher       *watcherStatus  `json:"watcher,omitempty"`
	Pipeline      *pipelineStatus `json:"pipeline,omitempty"`
	Fills         *fillsStatus    `json:"fills,omitempty"`
	Markets       *marketsStatus  `json:"markets,omitempty"`
	Journal       *journal.Counts `json:"journal,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := statusResponse{UptimeSeconds: int64(time.Since(s.started).Seconds())}

	if s.src.Watcher != nil {
		st := s.src.Watcher.Stats()
		resp.Watcher = &watcherStatus{
			State:              string(st.State),
			TxSeen:             st.TxSeen,
			CandidatesAdmitted: st.CandidatesAdmitted,
			DecodeFailures:     st.DecodeFailures,
			EventsPublished:    st.EventsPublished,
			Reconnects:         st.Reconnects,
			LastBlock:          st.LastBlock,
			RecencySize:        st.RecencySize,
			Selectors:          st.Selectors,
		}
	}
	if s.src.Pipeline != nil {
		processed, placed, skipped := s.src.Pipeline.Stats()
		resp.Pipeline = &pipelineStatus{Processed: processed, Placed: placed, Skipped: skipped}
	}
	if s.src.Fills != nil {
		st := s.src.Fills.Stats()
		resp.Fills = &fillsStatus{LogsSeen: st.LogsSeen, FillsMatched: st.FillsMatched}
	}
	if s.src.Markets != nil {
		resp.Markets = &marketsStatus{CacheSize: s.src.Markets.CacheSize()}
	}
	if s.src.Journal != nil {
		counts, err := s.src.Journal.Counts(c.Request.Context())
		if err == nil {
			resp.Journal = &counts
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecentFills(c *gin.Context) {
	if s.src.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	rows, err := s.src.Journal.RecentFills(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": rows})
}

func (s *Server) handleRecentPlacements(c *gin.Context) {
	if s.src.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	rows, err := s.src.Journal.RecentPlacements(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"placements": rows})
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
