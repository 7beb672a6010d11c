package mempool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/followbot/gofollow/internal/ethws"
)

var testUpgrader = websocket.Upgrader{}

func toWS(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// fakeProvider upgrades one connection, records the subscribe request,
// acks it with subID 0xsub1 and pushes the given results as subscription
// notifications. The connection then stays open until the client drops it.
func fakeProvider(t *testing.T, gotReq chan<- ethws.Request, notifications []interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
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

		ack := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0xsub1"}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
		for _, n := range notifications {
			frame := map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "eth_subscription",
				"params":  map[string]interface{}{"subscription": "0xsub1", "result": n},
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

func runTransport(t *testing.T, tr Transport) (<-chan PendingTx, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PendingTx, 8)
	errCh := make(chan error, 1)
	go func() { errCh <- tr.Run(ctx, out) }()
	return out, errCh, cancel
}

func expectTx(t *testing.T, out <-chan PendingTx) PendingTx {
	t.Helper()
	select {
	case tx := <-out:
		return tx
	case <-time.After(3 * time.Second):
		t.Fatal("no transaction delivered")
		return PendingTx{}
	}
}

func expectQuiet(t *testing.T, out <-chan PendingTx) {
	t.Helper()
	select {
	case tx := <-out:
		t.Fatalf("unexpected delivery: %+v", tx)
	case <-time.After(150 * time.Millisecond):
	}
}

func expectReturn(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("transport did not return after cancel")
		return nil
	}
}

func TestSubscriptionTransportDeliversFullObjects(t *testing.T) {
	txObject := map[string]interface{}{
		"hash":  "0xfeedbeef",
		"from":  bobAddr,
		"to":    exchangeAddr,
		"value": "0x0",
		"input": "0xa4a6c5a5ff",
	}
	// A wrong-shape frame and a hashless object are both skipped.
	gotReq := make(chan ethws.Request, 1)
	srv := fakeProvider(t, gotReq, []interface{}{
		"not-an-object",
		map[string]interface{}{"hash": ""},
		txObject,
	})
	defer srv.Close()

	tr := NewSubscriptionTransport(toWS(srv.URL), "")
	if tr.Name() != "subscription" {
		t.Fatalf("name = %q", tr.Name())
	}
	out, errCh, cancel := runTransport(t, tr)
	defer cancel()

	tx := expectTx(t, out)
	if tx.Hash != "0xfeedbeef" || tx.From != bobAddr || tx.To != exchangeAddr || tx.Input != "0xa4a6c5a5ff" {
		t.Errorf("tx = %+v", tx)
	}
	expectQuiet(t, out)

	req := <-gotReq
	if req.Method != "eth_subscribe" {
		t.Errorf("method = %q", req.Method)
	}
	if len(req.Params) != 2 || req.Params[0] != "newPendingTransactions" || req.Params[1] != true {
		t.Errorf("params = %v, want full-object subscription", req.Params)
	}

	cancel()
	if err := expectReturn(t, errCh); err == nil {
		t.Error("run should surface the cancellation")
	}
}

func TestStreamTransportFetchesHashes(t *testing.T) {
	const hash = "0x9a7bcafe"

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ethws.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Method != "eth_getTransactionByHash" {
			t.Errorf("rpc method = %q", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != hash {
			t.Errorf("rpc params = %v", req.Params)
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"hash":  hash,
				"from":  bobAddr,
				"to":    exchangeAddr,
				"value": "0x0",
				"input": "0xa4a6c5a5aa",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer rpcSrv.Close()

	gotReq := make(chan ethws.Request, 1)
	wsSrv := fakeProvider(t, gotReq, []interface{}{hash})
	defer wsSrv.Close()

	tr := NewStreamTransport(toWS(wsSrv.URL), "", rpcSrv.URL, nil)
	if tr.Name() != "stream" {
		t.Fatalf("name = %q", tr.Name())
	}
	out, errCh, cancel := runTransport(t, tr)
	defer cancel()

	tx := expectTx(t, out)
	if tx.Hash != hash || tx.To != exchangeAddr || tx.Input != "0xa4a6c5a5aa" {
		t.Errorf("tx = %+v", tx)
	}

	req := <-gotReq
	if len(req.Params) != 1 || req.Params[0] != "newPendingTransactions" {
		t.Errorf("subscribe params = %v, want hash-only subscription", req.Params)
	}

	cancel()
	expectReturn(t, errCh)
}

func TestStreamTransportDropsUnresolvedHashes(t *testing.T) {
	// The node answers null: the transaction left the pool between the
	// notification and the fetch.
	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer rpcSrv.Close()

	gotReq := make(chan ethws.Request, 1)
	wsSrv := fakeProvider(t, gotReq, []interface{}{"0xgone"})
	defer wsSrv.Close()

	tr := NewStreamTransport(toWS(wsSrv.URL), "", rpcSrv.URL, nil)
	out, errCh, cancel := runTransport(t, tr)
	defer cancel()

	expectQuiet(t, out)
	cancel()
	expectReturn(t, errCh)
}

func TestHeadsFeedParsesBlockNumbers(t *testing.T) {
	gotReq := make(chan ethws.Request, 1)
	srv := fakeProvider(t, gotReq, []interface{}{
		map[string]interface{}{"number": "0x1b4"},
		map[string]interface{}{"number": "not-hex"}, // skipped
		map[string]interface{}{"number": "0x1b5"},
	})
	defer srv.Close()

	feed := newHeadsFeed(toWS(srv.URL), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan uint64, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx, out) }()

	for _, want := range []uint64{436, 437} {
		select {
		case got := <-out:
			if got != want {
				t.Errorf("block = %d, want %d", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("block %d never arrived", want)
		}
	}

	req := <-gotReq
	if len(req.Params) != 1 || req.Params[0] != "newHeads" {
		t.Errorf("subscribe params = %v", req.Params)
	}

	cancel()
	expectReturn(t, errCh)
}
