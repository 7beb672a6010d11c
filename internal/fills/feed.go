// Package fills follows the exchanges' settled OrderFilled logs. The mempool
// sees intent; this feed sees what actually cleared, so downstream consumers
// can reconcile the two and catch trades the pending stream missed.
package fills

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/internal/ethws"
	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/syncgroup"
)

// OrderFilledTopic is keccak256 of
// OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256),
// the settlement event both exchanges emit once per filled order side.
const OrderFilledTopic = "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6"

// Stats is a snapshot of the feed's counters.
type Stats struct {
	LogsSeen     uint64
	FillsMatched uint64
}

// Feed subscribes to OrderFilled logs on the watched exchanges and publishes
// a FillConfirmedEvent for every fill whose maker or taker is followed.
type Feed struct {
	bus       *events.Bus
	urls      []string
	attempt   int
	contracts []string
	targets   map[string]bool
	log       *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	sg     *syncgroup.SyncGroup

	statsMu  sync.Mutex
	logsSeen uint64
	matched  uint64
}

// New builds the feed from the fills and watcher configuration. The log
// filter covers the exchange contracts only; the fee module forwards calls
// but emits no fills itself.
func New(cfg *config.FillsConfig, watch *config.WatchConfig, bus *events.Bus) *Feed {
	url := cfg.WSURL
	if url == "" {
		url = watch.WSURL
	}
	f := &Feed{
		bus:     bus,
		urls:    ethws.Endpoints(url, watch.BackupWSURL),
		targets: make(map[string]bool, len(watch.Targets)),
		sg:      syncgroup.NewSyncGroup(),
		log:     logger.WithField("component", "fills"),
	}
	f.contracts = append(f.contracts, watch.Contracts...)
	for _, target := range watch.Targets {
		f.targets[normalize(target)] = true
	}
	return f
}

// Start opens the log subscription. Only a stopped feed can start.
func (f *Feed) Start() error {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return errors.New("fills: feed already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mu.Unlock()

	f.sg.Add(func() { f.supervise(ctx) })
	f.sg.Run()
	f.log.Infof("fill feed running: contracts=%d targets=%d", len(f.contracts), len(f.targets))
	return nil
}

// Stop closes the subscription. It is idempotent.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	f.sg.WaitAndClear()
	f.log.Info("fill feed stopped")
}

// Stats snapshots the counters.
func (f *Feed) Stats() Stats {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	return Stats{LogsSeen: f.logsSeen, FillsMatched: f.matched}
}

func (f *Feed) supervise(ctx context.Context) {
	backoff := time.Second
	for {
		started := time.Now()
		err := f.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			backoff = time.Second
		}
		f.log.Warnf("log stream dropped: %v; reconnecting in %s", err, backoff)

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

func (f *Feed) run(ctx context.Context) error {
	url := f.urls[f.attempt%len(f.urls)]
	f.attempt++

	filter := map[string]interface{}{
		"address": f.contracts,
		"topics":  []string{OrderFilledTopic},
	}
	conn, subID, err := ethws.DialSubscribe(ctx, url, []interface{}{"logs", filter})
	if err != nil {
		return err
	}
	f.log.Infof("fill feed connected via %s (sub=%s)", url, subID)

	return ethws.Pump(ctx, conn, subID, f.handleLog)
}

// logEntry is the eth_subscribe("logs") notification payload.
type logEntry struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

func (f *Feed) handleLog(raw json.RawMessage) {
	var entry logEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return
	}

	f.statsMu.Lock()
	f.logsSeen++
	f.statsMu.Unlock()

	if entry.Removed {
		// Reorged out; the fill never settled.
		return
	}

	ev, err := decodeOrderFilled(entry)
	if err != nil {
		f.log.Debugf("undecodable log in %s: %v", entry.TransactionHash, err)
		return
	}
	if !f.targets[normalize(ev.Maker)] && !f.targets[normalize(ev.Taker)] {
		return
	}

	f.statsMu.Lock()
	f.matched++
	f.statsMu.Unlock()

	f.log.Infof("confirmed fill: tx=%s maker=%s taker=%s", ev.TxHash, ev.Maker, ev.Taker)
	f.bus.Publish(ev)
}

// decodeOrderFilled unpacks the event ABI: orderHash, maker and taker ride
// the indexed topics; the data words are makerAssetId, takerAssetId,
// makerAmountFilled, takerAmountFilled and fee, in that order.
func decodeOrderFilled(entry logEntry) (events.FillConfirmedEvent, error) {
	if len(entry.Topics) < 4 {
		return events.FillConfirmedEvent{}, errors.Errorf("fills: %d topics, want 4", len(entry.Topics))
	}

	ev := events.FillConfirmedEvent{
		TxHash:    entry.TransactionHash,
		LogIndex:  entry.LogIndex,
		OrderHash: entry.Topics[1],
		Maker:     topicAddress(entry.Topics[2]),
		Taker:     topicAddress(entry.Topics[3]),
	}
	if entry.BlockNumber != "" {
		if n, err := hexutil.DecodeUint64(entry.BlockNumber); err == nil {
			ev.BlockNumber = n
		}
	}

	words, err := dataWords(entry.Data, 5)
	if err != nil {
		return events.FillConfirmedEvent{}, err
	}
	ev.MakerAssetID = words[0]
	ev.TakerAssetID = words[1]
	ev.MakerAmount = words[2]
	ev.TakerAmount = words[3]
	ev.Fee = words[4]
	return ev, nil
}

// topicAddress recovers the address from a 32-byte indexed topic.
func topicAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

// dataWords splits log data into n 32-byte big-endian integers.
func dataWords(data string, n int) ([]*big.Int, error) {
	blob := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(blob) < n*64 {
		return nil, errors.Errorf("fills: log data holds %d hex chars, want %d", len(blob), n*64)
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		word, ok := new(big.Int).SetString(blob[i*64:(i+1)*64], 16)
		if !ok {
			return nil, errors.Errorf("fills: data word %d is not hex", i)
		}
		out[i] = word
	}
	return out, nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimPrefix(addr, "0x"))
}
