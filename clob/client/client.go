// Package client is a minimal Polymarket CLOB client covering the
// surface a copy follower needs: signing orders, posting and cancelling
// them, and bootstrapping API credentials. Read paths the follower does
// not use (books, prices, trades) are deliberately absent.
package client

import (
	"crypto/ecdsa"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/followbot/gofollow/clob/signing"
	"github.com/followbot/gofollow/clob/types"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/ratelimit"
)

const DefaultHost = "https://clob.polymarket.com"

// Config assembles everything the client needs. PrivateKey is hex and
// optional; without it only unauthenticated calls work. Creds are
// optional and can be derived later with CreateOrDeriveAPIKey.
type Config struct {
	Host          string
	ChainID       types.Chain
	PrivateKey    string
	Creds         *types.ApiKeyCreds
	SignatureType types.SignatureType
	Funder        string
	Limiter       *ratelimit.Manager
	Timeout       time.Duration
}

// Client talks to the CLOB over REST.
type Client struct {
	host       string
	chainID    types.Chain
	privateKey *ecdsa.PrivateKey
	creds      *types.ApiKeyCreds
	sigType    types.SignatureType
	funder     string
	http       *resty.Client
	limiter    *ratelimit.Manager
}

// NewClient validates the config and builds a client.
func NewClient(cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NewManager()
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		var err error
		key, err = signing.PrivateKeyFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
	}

	httpClient := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "gofollow/1.0").
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// A POST that timed out may still have placed the order;
			// never replay it.
			if r != nil && r.Request != nil && r.Request.Method == http.MethodPost {
				return false
			}
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Client{
		host:       host,
		chainID:    cfg.ChainID,
		privateKey: key,
		creds:      cfg.Creds,
		sigType:    cfg.SignatureType,
		funder:     cfg.Funder,
		http:       httpClient,
		limiter:    limiter,
	}, nil
}

// CanL1Auth reports whether wallet-signature auth is possible.
func (c *Client) CanL1Auth() error {
	if c.privateKey == nil {
		return errors.New("clob: private key required for L1 auth")
	}
	return nil
}

// CanL2Auth reports whether API-key auth is possible.
func (c *Client) CanL2Auth() error {
	if err := c.CanL1Auth(); err != nil {
		return err
	}
	if c.creds == nil || c.creds.Key == "" || c.creds.Secret == "" {
		return errors.New("clob: api credentials required for L2 auth")
	}
	return nil
}

// Address returns the signer address.
func (c *Client) Address() (common.Address, error) {
	if c.privateKey == nil {
		return common.Address{}, errors.New("clob: private key not set")
	}
	return signing.GetAddressFromPrivateKey(c.privateKey), nil
}

// SetCreds installs API credentials after a derive/create round trip.
func (c *Client) SetCreds(creds *types.ApiKeyCreds) {
	c.creds = creds
}

// ChainID returns the configured chain.
func (c *Client) ChainID() types.Chain {
	return c.chainID
}

// Funder returns the funding wallet address, empty when orders are
// funded by the signer itself.
func (c *Client) Funder() string {
	return c.funder
}

func (c *Client) debugf(format string, args ...interface{}) {
	logger.Debugf("clob: "+format, args...)
}
