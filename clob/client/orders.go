package client

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/followbot/gofollow/clob/signing"
	"github.com/followbot/gofollow/clob/types"
)

var (
	// minOrderCollateral is the smallest BUY notional the CLOB accepts.
	minOrderCollateral = decimal.NewFromInt(1)

	// minOrderShares is the smallest SELL size the CLOB accepts.
	minOrderShares = decimal.NewFromFloat(0.1)
)

// CreateOrder builds and signs a limit order. Nothing is sent.
func (c *Client) CreateOrder(ctx context.Context, order *types.UserOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}
	if options == nil || options.TickSize == "" {
		return nil, errors.New("clob: tick size required")
	}

	builder := NewOrderBuilder(c, c.sigType, c.funder)
	return builder.BuildOrder(order, options)
}

// CreateMarketOrder builds a marketable order from an amount and a worst
// acceptable price. FOK/FAK orders carry stricter precision than resting
// ones: price to 2 places, size to 4, and the exchange refuses orders
// under $1 notional or 0.1 shares.
func (c *Client) CreateMarketOrder(ctx context.Context, order *types.UserMarketOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}
	if order.Price.Sign() <= 0 {
		return nil, errors.New("clob: market order requires a positive price bound")
	}

	price := order.Price.Round(2)

	var size decimal.Decimal
	if order.Side == types.SideBuy {
		// Amount is collateral to spend; shares follow from the bound.
		size = order.Amount.Div(price).RoundDown(4)
	} else {
		size = order.Amount.RoundDown(4)
	}

	if order.Side == types.SideBuy && size.Mul(price).LessThan(minOrderCollateral) {
		return nil, errors.Errorf("clob: order notional %s below $1 minimum", size.Mul(price))
	}
	if size.LessThan(minOrderShares) {
		return nil, errors.Errorf("clob: order size %s below 0.1 share minimum", size)
	}

	userOrder := &types.UserOrder{
		TokenID:    order.TokenID,
		Side:       order.Side,
		Size:       size,
		Price:      price,
		FeeRateBps: order.FeeRateBps,
		Nonce:      order.Nonce,
		Taker:      order.Taker,
	}
	return c.CreateOrder(ctx, userOrder, options)
}

// PostOrder submits a signed order with the given time-in-force.
func (c *Client) PostOrder(ctx context.Context, order *types.SignedOrder, orderType types.OrderType) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, "clob:order:post"); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}

	payload := types.NewOrder{
		Order:     *order,
		Owner:     c.creds.Key,
		OrderType: orderType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal order")
	}
	bodyStr := string(body)

	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &types.L2HeaderArgs{
		Method:      "POST",
		RequestPath: EndpointPostOrder,
		Body:        &bodyStr,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "l2 headers")
	}

	var orderResp types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(l2HeaderMap(headers)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&orderResp).
		SetError(&orderResp).
		Post(EndpointPostOrder)
	if err != nil {
		return nil, errors.Wrap(err, "post order")
	}

	c.debugf("post order status=%d id=%s success=%v err=%q",
		resp.StatusCode(), orderResp.OrderID, orderResp.Success, orderResp.ErrorMsg)

	if resp.IsError() && orderResp.ErrorMsg == "" {
		return nil, errors.Errorf("post order: http %d: %s", resp.StatusCode(), resp.String())
	}
	return &orderResp, nil
}

// CancelOrder cancels a resting order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.OrderResponse, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, "clob:order:delete"); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}

	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return nil, errors.Wrap(err, "marshal cancel")
	}
	bodyStr := string(body)

	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &types.L2HeaderArgs{
		Method:      "DELETE",
		RequestPath: EndpointCancelOrder,
		Body:        &bodyStr,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "l2 headers")
	}

	var orderResp types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(l2HeaderMap(headers)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&orderResp).
		SetError(&orderResp).
		Delete(EndpointCancelOrder)
	if err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}
	if resp.IsError() && orderResp.ErrorMsg == "" {
		return nil, errors.Errorf("cancel order: http %d: %s", resp.StatusCode(), resp.String())
	}
	return &orderResp, nil
}

// GetOpenOrders lists resting orders, optionally filtered by asset id.
func (c *Client) GetOpenOrders(ctx context.Context, assetID string) ([]types.OpenOrder, error) {
	if err := c.CanL2Auth(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, "clob:orders:get"); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}

	headers, err := signing.CreateL2Headers(c.privateKey, c.creds, &types.L2HeaderArgs{
		Method:      "GET",
		RequestPath: EndpointGetOpenOrders,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "l2 headers")
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(l2HeaderMap(headers))
	if assetID != "" {
		req.SetQueryParam("asset_id", assetID)
	}

	var page types.OpenOrdersResponse
	resp, err := req.SetResult(&page).Get(EndpointGetOpenOrders)
	if err != nil {
		return nil, errors.Wrap(err, "get open orders")
	}
	if resp.IsError() {
		return nil, errors.Errorf("get open orders: http %d: %s", resp.StatusCode(), resp.String())
	}
	return page.Data, nil
}

func l2HeaderMap(h *types.L2PolyHeader) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":    h.PolyAddress,
		"POLY_SIGNATURE":  h.PolySignature,
		"POLY_TIMESTAMP":  h.PolyTimestamp,
		"POLY_API_KEY":    h.PolyAPIKey,
		"POLY_PASSPHRASE": h.PolyPassphrase,
	}
}
