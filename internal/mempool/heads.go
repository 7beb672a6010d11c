package mempool

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/followbot/gofollow/internal/ethws"
	"github.com/followbot/gofollow/pkg/logger"
)

// headsFeed subscribes to newHeads and forwards block numbers. It exists for
// liveness only; a dead pending stream with live heads points at the
// subscription, not the link.
type headsFeed struct {
	urls    []string
	attempt int
}

func newHeadsFeed(wsURL, backupWSURL string) *headsFeed {
	return &headsFeed{urls: ethws.Endpoints(wsURL, backupWSURL)}
}

func (h *headsFeed) Run(ctx context.Context, out chan<- uint64) error {
	url := h.urls[h.attempt%len(h.urls)]
	h.attempt++

	conn, subID, err := ethws.DialSubscribe(ctx, url, []interface{}{"newHeads"})
	if err != nil {
		return err
	}
	logger.Infof("mempool: heads feed connected via %s (sub=%s)", url, subID)

	return ethws.Pump(ctx, conn, subID, func(raw json.RawMessage) {
		var head struct {
			Number string `json:"number"`
		}
		if err := json.Unmarshal(raw, &head); err != nil || head.Number == "" {
			return
		}
		n, err := hexutil.DecodeUint64(head.Number)
		if err != nil {
			return
		}
		select {
		case out <- n:
		case <-ctx.Done():
		}
	})
}
