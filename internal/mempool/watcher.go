// Package mempool watches the chain's pending-transaction stream for match
// calls that involve followed addresses and publishes decoded candidates on
// the event bus. A block-header stream runs alongside as a liveness
// heartbeat.
package mempool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/internal/calldata"
	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/ratelimit"
	"github.com/followbot/gofollow/pkg/syncgroup"
)

// State is the watcher lifecycle phase.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Stats is a point-in-time snapshot of the watcher's counters.
type Stats struct {
	State              State
	TxSeen             uint64
	CandidatesAdmitted uint64
	DecodeFailures     uint64
	EventsPublished    uint64
	Reconnects         uint64
	LastBlock          uint64
	RecencySize        int
	Selectors          map[string]uint64
}

// Watcher filters the pending-transaction stream down to admitted match-call
// candidates. Admission runs four checks in order: destination allowlist,
// selector plus address-needle prefilter, recency dedup, then decode. The
// event publishes whether or not the decode succeeded.
type Watcher struct {
	cfg       *config.WatchConfig
	bus       *events.Bus
	transport Transport
	heads     *headsFeed

	contracts map[string]struct{}
	targets   []string
	selector  string
	recency   *recencySet
	log       *logrus.Entry

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	sg     *syncgroup.SyncGroup

	statsMu        sync.Mutex
	txSeen         uint64
	admitted       uint64
	decodeFailures uint64
	published      uint64
	reconnects     uint64
	lastBlock      uint64
	selectors      map[string]uint64
}

// Option adjusts watcher construction.
type Option func(*Watcher)

// WithTransport substitutes the pending-transaction source.
func WithTransport(t Transport) Option {
	return func(w *Watcher) { w.transport = t }
}

// WithoutHeads disables the block-header heartbeat stream.
func WithoutHeads() Option {
	return func(w *Watcher) { w.heads = nil }
}

// New builds a watcher from configuration. The transport variant follows
// cfg.Transport unless an option overrides it.
func New(cfg *config.WatchConfig, bus *events.Bus, limiter *ratelimit.Manager, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:       cfg,
		bus:       bus,
		contracts: make(map[string]struct{}),
		selector:  strings.ToLower(strings.TrimPrefix(cfg.Selector, "0x")),
		recency:   newRecencySet(cfg.RecencyCapacity),
		state:     StateStopped,
		sg:        syncgroup.NewSyncGroup(),
		selectors: make(map[string]uint64),
		log:       logger.WithField("component", "mempool"),
	}
	for _, addr := range cfg.WatchedContracts() {
		w.contracts[addr] = struct{}{}
	}
	for _, target := range cfg.Targets {
		w.targets = append(w.targets, strings.ToLower(target))
	}
	if cfg.WSURL != "" {
		w.heads = newHeadsFeed(cfg.WSURL, cfg.BackupWSURL)
	}

	switch cfg.Transport {
	case "stream":
		w.transport = NewStreamTransport(cfg.WSURL, cfg.BackupWSURL, cfg.RPCURL, limiter)
	default:
		w.transport = NewSubscriptionTransport(cfg.WSURL, cfg.BackupWSURL)
	}

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start opens the pending-transaction stream and the heartbeat stream. Only
// a stopped watcher can start.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.state != StateStopped {
		state := w.state
		w.mu.Unlock()
		return errors.Errorf("mempool: watcher is %s", state)
	}
	w.state = StateStarting
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	txCh := make(chan PendingTx, 256)
	w.sg.Add(func() { w.consumeTx(ctx, txCh) })
	w.sg.Add(func() {
		w.supervise(ctx, "pending", func(c context.Context) error {
			return w.transport.Run(c, txCh)
		})
	})

	if w.heads != nil {
		headCh := make(chan uint64, 16)
		w.sg.Add(func() { w.consumeHeads(ctx, headCh) })
		w.sg.Add(func() {
			w.supervise(ctx, "heads", func(c context.Context) error {
				return w.heads.Run(c, headCh)
			})
		})
	}
	w.sg.Run()

	w.mu.Lock()
	if w.state == StateStarting {
		w.state = StateRunning
	}
	w.mu.Unlock()

	w.log.Infof("watcher running: transport=%s contracts=%d targets=%d",
		w.transport.Name(), len(w.contracts), len(w.targets))
	return nil
}

// Stop closes both streams and stops admitting candidates. It is idempotent.
// Events already published keep flowing through their handlers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state != StateRunning && w.state != StateStarting {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.sg.WaitAndClear()

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
	w.log.Info("watcher stopped")
}

// State reports the lifecycle phase.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats snapshots the counters.
func (w *Watcher) Stats() Stats {
	state := w.State()

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	selectors := make(map[string]uint64, len(w.selectors))
	for name, n := range w.selectors {
		selectors[name] = n
	}
	return Stats{
		State:              state,
		TxSeen:             w.txSeen,
		CandidatesAdmitted: w.admitted,
		DecodeFailures:     w.decodeFailures,
		EventsPublished:    w.published,
		Reconnects:         w.reconnects,
		LastBlock:          w.lastBlock,
		RecencySize:        w.recency.Len(),
		Selectors:          selectors,
	}
}

// supervise reruns a stream with exponential backoff. A connection that
// held for over a minute resets the backoff; the streams fail independently.
func (w *Watcher) supervise(ctx context.Context, name string, run func(context.Context) error) {
	backoff := time.Second
	for {
		started := time.Now()
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			backoff = time.Second
		}

		w.statsMu.Lock()
		w.reconnects++
		w.statsMu.Unlock()
		w.log.Warnf("%s stream dropped: %v; reconnecting in %s", name, err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *Watcher) consumeTx(ctx context.Context, in <-chan PendingTx) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-in:
			w.handleTx(tx)
		}
	}
}

func (w *Watcher) consumeHeads(ctx context.Context, in <-chan uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case block := <-in:
			w.observeHead(block)
		}
	}
}

// handleTx runs the admission sequence for one candidate.
func (w *Watcher) handleTx(tx PendingTx) {
	w.statsMu.Lock()
	w.txSeen++
	w.statsMu.Unlock()

	if _, watched := w.contracts[strings.ToLower(tx.To)]; !watched {
		return
	}

	function := calldata.FunctionName(tx.Input)
	w.statsMu.Lock()
	w.selectors[function]++
	w.statsMu.Unlock()

	var matched []string
	for _, target := range w.targets {
		if calldata.MatchesCalldata(tx.Input, target, w.selector) {
			matched = append(matched, target)
		}
	}
	if len(matched) == 0 {
		return
	}

	if !w.recency.Admit(strings.ToLower(tx.Hash)) {
		return
	}
	w.statsMu.Lock()
	w.admitted++
	w.statsMu.Unlock()

	call, err := calldata.DecodeMatchOrders(tx.Input)
	if err != nil {
		w.statsMu.Lock()
		w.decodeFailures++
		w.statsMu.Unlock()
		w.log.Warnf("decode failed for %s (%s): %v", tx.Hash, function, err)
	}

	seenAt := time.Now()
	for _, target := range matched {
		event := events.PendingTradeEvent{
			Hash:     tx.Hash,
			From:     tx.From,
			To:       tx.To,
			Raw:      tx.Input,
			Function: function,
			Target:   target,
			SeenAt:   seenAt,
			Call:     call,
		}
		if call != nil {
			event.Fill = calldata.ComputeFillForTarget(call, target)
		}
		w.bus.Publish(event)

		w.statsMu.Lock()
		w.published++
		w.statsMu.Unlock()
	}
}

// observeHead records the head and emits a heartbeat on round blocks.
func (w *Watcher) observeHead(block uint64) {
	w.statsMu.Lock()
	w.lastBlock = block
	w.statsMu.Unlock()

	if w.cfg.HeartbeatInterval == 0 || block%w.cfg.HeartbeatInterval != 0 {
		return
	}
	w.log.Infof("heartbeat: block %d", block)
	w.bus.Publish(events.HeartbeatEvent{BlockNumber: block, At: time.Now()})
}
