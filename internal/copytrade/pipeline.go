package copytrade

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/internal/markets"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
)

// MarketLookup resolves venue metadata for a token. A (nil, nil) return
// means the token is not a known market.
type MarketLookup interface {
	ResolveByTokenID(ctx context.Context, tokenID string) (*markets.Market, error)
}

// FillRecord is an observed source fill, flattened for persistence.
type FillRecord struct {
	TxHash  string    `json:"tx_hash"`
	Target  string    `json:"target"`
	Role    string    `json:"role"`
	Side    string    `json:"side"`
	TokenID string    `json:"token_id"`
	Shares  string    `json:"shares"`
	Cash    string    `json:"cash"`
	SeenAt  time.Time `json:"seen_at"`
}

// PlacementRecord is one intent and its terminal outcome.
type PlacementRecord struct {
	SourceHash   string    `json:"source_hash"`
	Target       string    `json:"target"`
	TokenID      string    `json:"token_id"`
	Side         string    `json:"side"`
	Size         string    `json:"size"`
	LimitPrice   string    `json:"limit_price"`
	ImpliedPrice string    `json:"implied_price"`
	Notional     string    `json:"notional"`
	Status       string    `json:"status"`
	VenueOrderID string    `json:"venue_order_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// Sink persists what the pipeline saw and did. Implementations must be
// safe for concurrent use.
type Sink interface {
	RecordFill(ctx context.Context, rec FillRecord) error
	RecordPlacement(ctx context.Context, rec PlacementRecord) error
}

// Pipeline drives fill → intent → placement for each attributed pending
// trade. Each event runs on its own goroutine; pipelines for different
// transactions interleave freely and finish out of order.
type Pipeline struct {
	resolver MarketLookup
	placer   *Placer
	cfg      *config.CopyConfig
	sink     Sink
	timeout  time.Duration
	log      *logrus.Entry

	wg sync.WaitGroup

	mu        sync.Mutex
	processed int
	placed    int
	skipped   int
}

// NewPipeline wires the stages together. sink may be nil.
func NewPipeline(resolver MarketLookup, placer *Placer, cfg *config.CopyConfig, sink Sink) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		placer:   placer,
		cfg:      cfg,
		sink:     sink,
		timeout:  30 * time.Second,
		log:      logger.WithField("component", "pipeline"),
	}
}

// Attach subscribes the pipeline to the bus and returns the unsubscribe
// function.
func (p *Pipeline) Attach(bus *events.Bus) func() {
	return bus.Subscribe(p.handleEvent)
}

// Wait blocks until all in-flight pipelines finish. Placements already
// started are run to completion, not canceled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stats returns (processed, placed, skipped) counts.
func (p *Pipeline) Stats() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.placed, p.skipped
}

func (p *Pipeline) handleEvent(ev events.Event) {
	trade, ok := ev.(events.PendingTradeEvent)
	if !ok || trade.Fill == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(trade)
	}()
}

func (p *Pipeline) process(trade events.PendingTradeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()

	fill := trade.Fill
	p.recordFill(ctx, trade)

	intent := BuildIntent(fill, p.cfg)
	if intent == nil {
		p.log.WithFields(logrus.Fields{
			"tx":   trade.Hash,
			"side": fill.Side,
		}).Debug("fill produced no intent")
		return
	}
	intent.SourceHash = trade.Hash

	market, err := p.resolver.ResolveByTokenID(ctx, intent.TokenID)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"tx":    trade.Hash,
			"token": intent.TokenID,
		}).WithError(err).Warn("market resolution failed")
		market = nil
	}

	outcome := p.placer.Place(ctx, intent, market)

	p.mu.Lock()
	if outcome.Status == StatusSkipped {
		p.skipped++
	} else {
		p.placed++
	}
	p.mu.Unlock()

	p.recordPlacement(ctx, trade, intent, outcome)

	p.log.WithFields(logrus.Fields{
		"tx":      trade.Hash,
		"token":   intent.TokenID,
		"side":    intent.Side,
		"size":    intent.VenueSize().String(),
		"price":   intent.LimitPrice.String(),
		"status":  outcome.Status,
		"orderId": outcome.VenueOrderID,
		"reason":  outcome.Reason,
	}).Info("copy pipeline finished")
}

func (p *Pipeline) recordFill(ctx context.Context, trade events.PendingTradeEvent) {
	if p.sink == nil {
		return
	}
	fill := trade.Fill
	rec := FillRecord{
		TxHash:  trade.Hash,
		Target:  trade.Target,
		Role:    string(fill.Role),
		Side:    string(fill.Side),
		TokenID: fill.TokenID,
		SeenAt:  trade.SeenAt,
	}
	if fill.SharesFilled != nil {
		rec.Shares = fill.SharesFilled.String()
	}
	if fill.CashFilled != nil {
		rec.Cash = fill.CashFilled.String()
	}
	if err := p.sink.RecordFill(ctx, rec); err != nil {
		p.log.WithError(err).Warn("journal fill write failed")
	}
}

func (p *Pipeline) recordPlacement(ctx context.Context, trade events.PendingTradeEvent, intent *Intent, outcome Outcome) {
	if p.sink == nil {
		return
	}
	rec := PlacementRecord{
		SourceHash:   intent.SourceHash,
		Target:       trade.Target,
		TokenID:      intent.TokenID,
		Side:         string(intent.Side),
		Size:         intent.VenueSize().String(),
		LimitPrice:   intent.LimitPrice.String(),
		ImpliedPrice: intent.ImpliedPrice.String(),
		Notional:     intent.VenueNotional().String(),
		Status:       string(outcome.Status),
		VenueOrderID: outcome.VenueOrderID,
		Reason:       outcome.Reason,
		At:           time.Now(),
	}
	if err := p.sink.RecordPlacement(ctx, rec); err != nil {
		p.log.WithError(err).Warn("journal placement write failed")
	}
}
