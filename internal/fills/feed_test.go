package fills

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/followbot/gofollow/internal/ethws"
	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/pkg/config"
)

const (
	exchangeA = "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"
	exchangeB = "0xc5d563a36ae78145c45a50134d48a1215220f80a"
	aliceAddr = "0x05c1882212a41aa8d7df5b70eebe03d9319345b7"
	bobAddr   = "0xabcdef1234567890abcdef1234567890abcdef12"
	carolAddr = "0x64ec7151cbbcfbe26af626057cd2b2bbd2aa3476"
)

func word(v int64) string {
	w := make([]byte, 32)
	big.NewInt(v).FillBytes(w)
	return hex.EncodeToString(w)
}

func addrTopic(addr string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(addr), "0x")
}

func orderHashTopic() string {
	return "0x" + strings.Repeat("ab", 32)
}

func validEntry(maker, taker string) logEntry {
	return logEntry{
		Address:         exchangeA,
		Topics:          []string{OrderFilledTopic, orderHashTopic(), addrTopic(maker), addrTopic(taker)},
		Data:            "0x" + word(0) + word(777) + word(500_000_000) + word(1_000_000_000) + word(25_000),
		BlockNumber:     "0x1b4",
		TransactionHash: "0xcafe",
		LogIndex:        "0x2",
	}
}

func TestDecodeOrderFilled(t *testing.T) {
	ev, err := decodeOrderFilled(validEntry(aliceAddr, bobAddr))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if ev.Maker != aliceAddr || ev.Taker != bobAddr {
		t.Errorf("maker/taker = %s/%s", ev.Maker, ev.Taker)
	}
	if ev.OrderHash != orderHashTopic() {
		t.Errorf("orderHash = %s", ev.OrderHash)
	}
	if ev.TxHash != "0xcafe" || ev.LogIndex != "0x2" {
		t.Errorf("tx/logIndex = %s/%s", ev.TxHash, ev.LogIndex)
	}
	if ev.BlockNumber != 436 {
		t.Errorf("block = %d, want 436", ev.BlockNumber)
	}
	if ev.MakerAssetID.Sign() != 0 {
		t.Errorf("makerAssetId = %s, want 0 (collateral)", ev.MakerAssetID)
	}
	if ev.TakerAssetID.String() != "777" {
		t.Errorf("takerAssetId = %s, want 777", ev.TakerAssetID)
	}
	if ev.MakerAmount.String() != "500000000" || ev.TakerAmount.String() != "1000000000" {
		t.Errorf("amounts = %s/%s", ev.MakerAmount, ev.TakerAmount)
	}
	if ev.Fee.String() != "25000" {
		t.Errorf("fee = %s", ev.Fee)
	}
}

func TestDecodeOrderFilledRejectsMalformed(t *testing.T) {
	t.Run("missing topics", func(t *testing.T) {
		entry := validEntry(aliceAddr, bobAddr)
		entry.Topics = entry.Topics[:3]
		if _, err := decodeOrderFilled(entry); err == nil {
			t.Fatal("expected error for three topics")
		}
	})

	t.Run("short data", func(t *testing.T) {
		entry := validEntry(aliceAddr, bobAddr)
		entry.Data = "0x" + word(0) + word(777)
		if _, err := decodeOrderFilled(entry); err == nil {
			t.Fatal("expected error for truncated data")
		}
	})

	t.Run("non-hex data", func(t *testing.T) {
		entry := validEntry(aliceAddr, bobAddr)
		entry.Data = "0x" + strings.Repeat("zz", 160) // right length, wrong alphabet
		if _, err := decodeOrderFilled(entry); err == nil {
			t.Fatal("expected error for non-hex data")
		}
	})
}

func TestTopicAddress(t *testing.T) {
	if got := topicAddress(addrTopic(aliceAddr)); got != aliceAddr {
		t.Errorf("topicAddress = %s, want %s", got, aliceAddr)
	}
	if got := topicAddress("0x1234"); got != "" {
		t.Errorf("short topic = %q, want empty", got)
	}
}

var upgrader = websocket.Upgrader{}

func toWS(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// fakeLogProvider upgrades one connection, acks the subscription and pushes
// the given logs, then idles until the client disconnects.
func fakeLogProvider(t *testing.T, gotReq chan<- ethws.Request, logs []interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req ethws.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		select {
		case gotReq <- req:
		default:
		}

		if err := conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xlogs1"}); err != nil {
			return
		}
		for _, l := range logs {
			frame := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params":  map[string]interface{}{"subscription": "0xlogs1", "result": l},
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func logJSON(maker, taker string, removed bool) map[string]interface{} {
	return map[string]interface{}{
		"address":         exchangeA,
		"topics":          []string{OrderFilledTopic, orderHashTopic(), addrTopic(maker), addrTopic(taker)},
		"data":            "0x" + word(0) + word(777) + word(500_000_000) + word(1_000_000_000) + word(0),
		"blockNumber":     "0x1b4",
		"transactionHash": "0xdeadbeef",
		"logIndex":        "0x2",
		"removed":         removed,
	}
}

type fillRecorder struct {
	mu    sync.Mutex
	fills []events.FillConfirmedEvent
}

func (r *fillRecorder) record(e events.Event) {
	if ev, ok := e.(events.FillConfirmedEvent); ok {
		r.mu.Lock()
		r.fills = append(r.fills, ev)
		r.mu.Unlock()
	}
}

func (r *fillRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fills)
}

func (r *fillRecorder) at(i int) events.FillConfirmedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fills[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFeedPublishesFollowedFills(t *testing.T) {
	// A stranger fill, a reorged-out fill and a followed fill: only the
	// last one is published.
	gotReq := make(chan ethws.Request, 1)
	srv := fakeLogProvider(t, gotReq, []interface{}{
		logJSON(bobAddr, carolAddr, false),
		logJSON(aliceAddr, bobAddr, true),
		logJSON(carolAddr, aliceAddr, false),
	})
	defer srv.Close()

	bus := events.NewBus()
	rec := &fillRecorder{}
	bus.Subscribe(rec.record)

	cfg := &config.FillsConfig{Enabled: true, WSURL: toWS(srv.URL)}
	watch := &config.WatchConfig{
		Targets:   []string{aliceAddr},
		Contracts: []string{exchangeA, exchangeB},
	}
	feed := New(cfg, watch, bus)
	if err := feed.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(feed.Stop)

	waitFor(t, "all logs observed", func() bool { return feed.Stats().LogsSeen == 3 })
	waitFor(t, "followed fill", func() bool { return rec.count() == 1 })

	ev := rec.at(0)
	if ev.Maker != carolAddr || ev.Taker != aliceAddr {
		t.Errorf("maker/taker = %s/%s", ev.Maker, ev.Taker)
	}
	if ev.TakerAmount.String() != "1000000000" {
		t.Errorf("takerAmount = %s", ev.TakerAmount)
	}
	if got := feed.Stats().FillsMatched; got != 1 {
		t.Errorf("matched = %d, want 1", got)
	}

	req := <-gotReq
	if req.Method != "eth_subscribe" || len(req.Params) != 2 || req.Params[0] != "logs" {
		t.Fatalf("subscribe request = %+v", req)
	}
	filter, ok := req.Params[1].(map[string]interface{})
	if !ok {
		t.Fatalf("filter = %T", req.Params[1])
	}
	addrs, _ := filter["address"].([]interface{})
	if len(addrs) != 2 {
		t.Errorf("filter addresses = %v, want both exchanges", addrs)
	}
	topics, _ := filter["topics"].([]interface{})
	if len(topics) != 1 || topics[0] != OrderFilledTopic {
		t.Errorf("filter topics = %v", topics)
	}
}

func TestFeedLifecycle(t *testing.T) {
	srv := fakeLogProvider(t, make(chan ethws.Request, 1), nil)
	defer srv.Close()

	cfg := &config.FillsConfig{WSURL: toWS(srv.URL)}
	watch := &config.WatchConfig{Targets: []string{aliceAddr}, Contracts: []string{exchangeA}}
	feed := New(cfg, watch, events.NewBus())

	if err := feed.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := feed.Start(); err == nil {
		t.Fatal("second start should be rejected")
	}
	feed.Stop()
	feed.Stop() // no-op

	if err := feed.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	feed.Stop()
}
