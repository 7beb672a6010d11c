package client

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/followbot/gofollow/clob/signing"
	"github.com/followbot/gofollow/clob/types"
)

// CreateOrDeriveAPIKey returns the API credentials for the signer,
// deriving the existing key when one exists and creating one otherwise.
// The CLOB answers the derive call with 400 for wallets that have never
// created a key.
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context, nonce *int64) (*types.ApiKeyCreds, error) {
	if err := c.CanL1Auth(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, "clob:auth"); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}

	n := int64(0)
	if nonce != nil {
		n = *nonce
	}
	headers, err := signing.CreateL1Headers(c.privateKey, c.chainID, &n, nil)
	if err != nil {
		return nil, errors.Wrap(err, "l1 headers")
	}
	headerMap := l1HeaderMap(headers)

	var raw types.ApiKeyRaw
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headerMap).
		SetResult(&raw).
		Get(EndpointDeriveAPIKey)
	if err == nil && resp.StatusCode() == http.StatusOK {
		return credsFromRaw(&raw), nil
	}
	if err == nil && resp.StatusCode() != http.StatusBadRequest {
		return nil, errors.Errorf("derive api key: http %d: %s", resp.StatusCode(), resp.String())
	}

	c.debugf("derive api key unavailable, creating a new one")

	raw = types.ApiKeyRaw{}
	resp, err = c.http.R().
		SetContext(ctx).
		SetHeaders(headerMap).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{}).
		SetResult(&raw).
		Post(EndpointCreateAPIKey)
	if err != nil {
		return nil, errors.Wrap(err, "create api key")
	}
	if resp.IsError() {
		return nil, errors.Errorf("create api key: http %d: %s", resp.StatusCode(), resp.String())
	}
	return credsFromRaw(&raw), nil
}

func credsFromRaw(raw *types.ApiKeyRaw) *types.ApiKeyCreds {
	return &types.ApiKeyCreds{
		Key:        raw.ApiKey,
		Secret:     raw.Secret,
		Passphrase: raw.Passphrase,
	}
}

func l1HeaderMap(h *types.L1PolyHeader) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":   h.PolyAddress,
		"POLY_SIGNATURE": h.PolySignature,
		"POLY_TIMESTAMP": h.PolyTimestamp,
		"POLY_NONCE":     h.PolyNonce,
	}
}
