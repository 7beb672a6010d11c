// Package events carries the process-internal event types and the bus that
// fans them out to subscribers.
package events

import (
	"math/big"
	"time"

	"github.com/followbot/gofollow/internal/calldata"
)

// Event is anything the bus can deliver.
type Event interface {
	EventType() string
}

// PendingTradeEvent is an admitted mempool candidate: a pending transaction
// to a watched contract whose calldata passed the selector and address
// filters. Call and Fill are nil when the full decode failed; Hash and Raw
// always survive so a failed decode is still observable.
type PendingTradeEvent struct {
	Hash     string
	From     string
	To       string
	Raw      string
	Function string
	Target   string
	SeenAt   time.Time
	Call     *calldata.MatchCall
	Fill     *calldata.Fill
}

func (PendingTradeEvent) EventType() string { return "pending_trade" }

// HeartbeatEvent signals stream liveness on round block numbers. It has no
// behavioral effect downstream.
type HeartbeatEvent struct {
	BlockNumber uint64
	At          time.Time
}

func (HeartbeatEvent) EventType() string { return "heartbeat" }

// FillConfirmedEvent is a settled OrderFilled log involving a followed
// address, decoded from the exchange's event stream. It is the fallback
// signal when the mempool missed the trade.
type FillConfirmedEvent struct {
	TxHash       string
	LogIndex     string // distinguishes multiple fills within one transaction
	BlockNumber  uint64
	OrderHash    string
	Maker        string
	Taker        string
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerAmount  *big.Int
	TakerAmount  *big.Int
	Fee          *big.Int
}

func (FillConfirmedEvent) EventType() string { return "fill_confirmed" }
