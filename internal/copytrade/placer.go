package copytrade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/clob/types"
	"github.com/followbot/gofollow/internal/calldata"
	"github.com/followbot/gofollow/internal/markets"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
)

// Venue is the slice of the CLOB client the placer needs.
type Venue interface {
	CreateOrder(ctx context.Context, order *types.UserOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error)
	CreateMarketOrder(ctx context.Context, order *types.UserMarketOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error)
	PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType) (*types.OrderResponse, error)
}

// Status is the terminal state of one placement attempt.
type Status string

const (
	StatusSimulated Status = "simulated"
	StatusPosted    Status = "posted"
	StatusSkipped   Status = "skipped"
)

// Outcome reports what happened to an intent. Every intent gets exactly
// one outcome; nothing is retried.
type Outcome struct {
	Status       Status
	VenueOrderID string
	Reason       string
}

// Placer executes intents against the venue, or pretends to when
// running without credentials or in simulate mode.
type Placer struct {
	venue    Venue
	cfg      *config.CopyConfig
	hasCreds bool
	log      *logrus.Entry
}

func NewPlacer(venue Venue, cfg *config.CopyConfig, hasCreds bool) *Placer {
	return &Placer{
		venue:    venue,
		cfg:      cfg,
		hasCreds: hasCreds,
		log:      logger.WithField("component", "placer"),
	}
}

// Place runs one intent to its terminal outcome. The market carries the
// tick size and neg-risk flag the venue needs to round and route the
// order; without it a live placement cannot be built.
func (p *Placer) Place(ctx context.Context, intent *Intent, market *markets.Market) Outcome {
	if intent == nil {
		return Outcome{Status: StatusSkipped, Reason: "no intent"}
	}

	if !p.hasCreds || p.cfg.SimulateOnly || p.venue == nil {
		// Fabricated id so simulated rows stay individually traceable in
		// the journal.
		simID := fmt.Sprintf("sim_%d", time.Now().UnixNano())
		p.log.WithFields(logrus.Fields{
			"token":    intent.TokenID,
			"side":     intent.Side,
			"size":     intent.VenueSize().String(),
			"price":    intent.LimitPrice.String(),
			"notional": intent.VenueNotional().String(),
			"orderId":  simID,
		}).Info("simulated placement")
		return Outcome{Status: StatusSimulated, VenueOrderID: simID}
	}

	if market == nil {
		return Outcome{Status: StatusSkipped, Reason: "market metadata unavailable"}
	}

	options := &types.CreateOrderOptions{
		TickSize: types.TickSize(market.TickSize),
		NegRisk:  &market.NegRisk,
	}

	if p.cfg.OrderType == "limit" {
		return p.placeLimit(ctx, intent, options)
	}
	return p.placeMarket(ctx, intent, options)
}

// placeMarket submits an immediate-or-cancel order. Amount semantics
// follow the venue: collateral to spend on a BUY, shares to sell on a
// SELL.
func (p *Placer) placeMarket(ctx context.Context, intent *Intent, options *types.CreateOrderOptions) Outcome {
	var amount decimal.Decimal
	if intent.Side == calldata.SideBuy {
		amount = intent.VenueNotional().RoundDown(2)
	} else {
		amount = intent.VenueSize().RoundDown(4)
	}
	if amount.Sign() <= 0 {
		return Outcome{Status: StatusSkipped, Reason: "amount rounded to zero"}
	}

	order := &types.UserMarketOrder{
		TokenID: intent.TokenID,
		Side:    sideToVenue(intent.Side),
		Amount:  amount,
		Price:   intent.LimitPrice,
	}

	signed, err := p.venue.CreateMarketOrder(ctx, order, options)
	if err != nil {
		return p.skipped(intent, err.Error())
	}
	return p.submit(ctx, intent, signed, types.OrderTypeFAK)
}

// placeLimit rests a GTC order at the slippage-adjusted price.
func (p *Placer) placeLimit(ctx context.Context, intent *Intent, options *types.CreateOrderOptions) Outcome {
	price := intent.LimitPrice.RoundDown(4)
	size := intent.VenueSize().RoundDown(4)
	if price.Sign() <= 0 || size.Sign() <= 0 {
		return Outcome{Status: StatusSkipped, Reason: "price/size rounded to zero"}
	}

	order := &types.UserOrder{
		TokenID: intent.TokenID,
		Side:    sideToVenue(intent.Side),
		Price:   price,
		Size:    size,
	}

	signed, err := p.venue.CreateOrder(ctx, order, options)
	if err != nil {
		return p.skipped(intent, err.Error())
	}
	return p.submit(ctx, intent, signed, types.OrderTypeGTC)
}

func (p *Placer) submit(ctx context.Context, intent *Intent, signed *types.SignedOrder, orderType types.OrderType) Outcome {
	resp, err := p.venue.PostOrder(ctx, signed, orderType)
	if err != nil {
		return p.skipped(intent, err.Error())
	}
	if !resp.Success {
		reason := resp.ErrorMsg
		if reason == "" {
			reason = "venue rejected order"
		}
		return p.skipped(intent, reason)
	}

	p.log.WithFields(logrus.Fields{
		"token":   intent.TokenID,
		"side":    intent.Side,
		"orderId": resp.OrderID,
		"status":  resp.Status,
	}).Info("order posted")
	return Outcome{Status: StatusPosted, VenueOrderID: resp.OrderID}
}

func (p *Placer) skipped(intent *Intent, reason string) Outcome {
	p.log.WithFields(logrus.Fields{
		"token":  intent.TokenID,
		"side":   intent.Side,
		"reason": reason,
	}).Warn("placement skipped")
	return Outcome{Status: StatusSkipped, Reason: reason}
}

func sideToVenue(side calldata.Side) types.Side {
	if side == calldata.SideBuy {
		return types.SideBuy
	}
	return types.SideSell
}
