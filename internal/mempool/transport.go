package mempool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/followbot/gofollow/internal/ethws"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/ratelimit"
)

// fetchBudget bounds how long a stream-transport hash may wait for a
// rate-limit slot. Polygon rotates its pending pool within seconds, so a
// fetch granted later than this would land on a mined transaction.
const fetchBudget = 2 * time.Second

// PendingTx is the normalized pending transaction both transports deliver.
type PendingTx struct {
	Hash  string
	From  string
	To    string
	Value string
	Input string
}

// Transport is one upstream source of pending transactions. Run connects,
// subscribes and forwards transactions to out until the connection drops or
// ctx ends; the watcher owns reconnection and backoff.
type Transport interface {
	Name() string
	Run(ctx context.Context, out chan<- PendingTx) error
}

// rpcTransaction mirrors the provider's transaction object. To is empty for
// contract creations, which the watcher's allowlist then rejects.
type rpcTransaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Input string `json:"input"`
}

func (t *rpcTransaction) pending() PendingTx {
	return PendingTx{Hash: t.Hash, From: t.From, To: t.To, Value: t.Value, Input: t.Input}
}

// SubscriptionTransport takes the provider's full-object push:
// eth_subscribe("newPendingTransactions", true) delivers whole transactions,
// so no follow-up fetch is needed.
type SubscriptionTransport struct {
	urls    []string
	attempt int
}

func NewSubscriptionTransport(wsURL, backupWSURL string) *SubscriptionTransport {
	return &SubscriptionTransport{urls: ethws.Endpoints(wsURL, backupWSURL)}
}

func (t *SubscriptionTransport) Name() string { return "subscription" }

func (t *SubscriptionTransport) Run(ctx context.Context, out chan<- PendingTx) error {
	url := t.urls[t.attempt%len(t.urls)]
	t.attempt++

	conn, subID, err := ethws.DialSubscribe(ctx, url, []interface{}{"newPendingTransactions", true})
	if err != nil {
		return err
	}
	logger.Infof("mempool: subscription transport connected via %s (sub=%s)", url, subID)

	return ethws.Pump(ctx, conn, subID, func(raw json.RawMessage) {
		var tx rpcTransaction
		if err := json.Unmarshal(raw, &tx); err != nil || tx.Hash == "" {
			return
		}
		select {
		case out <- tx.pending():
		case <-ctx.Done():
		}
	})
}

// StreamTransport works against any JSON-RPC provider: a hash-only
// subscription plus one rate-limited eth_getTransactionByHash per hash. The
// fetch goes to the same provider; other nodes may not hold the pending
// transaction yet.
type StreamTransport struct {
	urls    []string
	rpcURL  string
	http    *resty.Client
	limiter *ratelimit.Manager
	attempt int
}

func NewStreamTransport(wsURL, backupWSURL, rpcURL string, limiter *ratelimit.Manager) *StreamTransport {
	if limiter == nil {
		limiter = ratelimit.NewManager()
	}
	return &StreamTransport{
		urls:   ethws.Endpoints(wsURL, backupWSURL),
		rpcURL: rpcURL,
		http: resty.New().
			SetTimeout(5 * time.Second).
			SetHeader("Content-Type", "application/json"),
		limiter: limiter,
	}
}

func (t *StreamTransport) Name() string { return "stream" }

func (t *StreamTransport) Run(ctx context.Context, out chan<- PendingTx) error {
	url := t.urls[t.attempt%len(t.urls)]
	t.attempt++

	conn, subID, err := ethws.DialSubscribe(ctx, url, []interface{}{"newPendingTransactions"})
	if err != nil {
		return err
	}
	logger.Infof("mempool: stream transport connected via %s (sub=%s)", url, subID)

	return ethws.Pump(ctx, conn, subID, func(raw json.RawMessage) {
		var hash string
		if err := json.Unmarshal(raw, &hash); err != nil || hash == "" {
			return
		}
		go t.fetch(ctx, hash, out)
	})
}

// fetch resolves one pending hash to a full transaction. A hash whose
// rate-limit slot does not open within fetchBudget is dropped: by then the
// transaction is mined or evicted and the fetch would be wasted.
func (t *StreamTransport) fetch(ctx context.Context, hash string, out chan<- PendingTx) {
	waitCtx, cancel := context.WithTimeout(ctx, fetchBudget)
	defer cancel()
	if err := t.limiter.Wait(waitCtx, "rpc:tx:get"); err != nil {
		return
	}

	var result struct {
		Result *rpcTransaction `json:"result"`
		Error  *ethws.Error    `json:"error"`
	}
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(ethws.NewRequest("eth_getTransactionByHash", hash)).
		SetResult(&result).
		Post(t.rpcURL)
	if err != nil {
		logger.Debugf("mempool: tx fetch %s failed: %v", hash, err)
		return
	}
	if resp.IsError() || result.Error != nil || result.Result == nil {
		// Gone from the pool already, or the node never saw it.
		return
	}

	tx := result.Result
	if tx.Hash == "" {
		tx.Hash = hash
	}
	select {
	case out <- tx.pending():
	case <-ctx.Done():
	}
}
