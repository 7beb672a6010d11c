// Package markets resolves venue market metadata by CLOB token id. Lookups
// go to the Gamma REST API and are memoized in a TTL cache; a token with no
// market is remembered too, under a shorter negative TTL, so unknown tokens
// do not hammer the API on every sighting.
package markets

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/pkg/cache"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/ratelimit"
)

const DefaultBaseURL = "https://gamma-api.polymarket.com"

// Market is the slice of Gamma metadata the copy pipeline acts on.
type Market struct {
	ID          string
	Question    string
	Slug        string
	ConditionID string
	Category    string
	TokenIDs    []string
	TickSize    string
	NegRisk     bool
	Active      bool
	Closed      bool
	EndDate     string
}

// gammaMarket is the wire shape. clobTokenIds arrives as a JSON array
// encoded inside a string.
type gammaMarket struct {
	ID                    string  `json:"id"`
	Question              string  `json:"question"`
	ConditionID           string  `json:"conditionId"`
	Slug                  string  `json:"slug"`
	EndDate               string  `json:"endDate"`
	Category              string  `json:"category"`
	ClobTokenIDs          string  `json:"clobTokenIds"`
	Active                bool    `json:"active"`
	Closed                bool    `json:"closed"`
	NegRisk               bool    `json:"negRisk"`
	OrderPriceMinTickSize float64 `json:"orderPriceMinTickSize"`
}

type Config struct {
	BaseURL     string
	TTL         time.Duration
	NegativeTTL time.Duration
	Timeout     time.Duration
	Limiter     *ratelimit.Manager
}

// Resolver memoizes Gamma lookups. A nil market with a nil error means the
// token has no market; errors mean the lookup itself failed and nothing was
// cached.
type Resolver struct {
	http    *resty.Client
	cache   *cache.InMemoryCache[string, *Market]
	ttl     time.Duration
	negTTL  time.Duration
	limiter *ratelimit.Manager
	log     *logrus.Entry
}

var errNotFound = errors.New("markets: no market for token")

func NewResolver(cfg Config) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	return &Resolver{
		http:    httpClient,
		cache:   cache.NewInMemoryCache[string, *Market](cfg.TTL),
		ttl:     cfg.TTL,
		negTTL:  cfg.NegativeTTL,
		limiter: cfg.Limiter,
		log:     logger.WithField("component", "markets"),
	}
}

// ResolveByTokenID returns the market trading tokenID, nil when the venue
// knows no such market, or an error when the lookup failed. Concurrent
// callers for one token share a single upstream request.
func (r *Resolver) ResolveByTokenID(ctx context.Context, tokenID string) (*Market, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, errors.New("markets: empty token id")
	}

	m, err := r.cache.GetOrLoad(ctx, tokenID, r.ttl, func(ctx context.Context) (*Market, error) {
		found, ferr := r.fetchByTokenID(ctx, tokenID)
		if ferr != nil {
			return nil, ferr
		}
		if found == nil {
			return nil, errNotFound
		}
		return found, nil
	})
	if errors.Is(err, errNotFound) {
		// Not-found is a resolver policy, not a cache one: store an explicit
		// nil under the shorter TTL so the next sighting is a cache hit.
		r.cache.Set(tokenID, nil, r.negTTL)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CacheSize reports live cache entries for the status endpoint.
func (r *Resolver) CacheSize() int {
	return r.cache.Size()
}

// Close releases the cache janitor.
func (r *Resolver) Close() {
	r.cache.Close()
}

func (r *Resolver) fetchByTokenID(ctx context.Context, tokenID string) (*Market, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "gamma:markets:get"); err != nil {
			return nil, errors.Wrap(err, "markets: rate limit wait")
		}
	}

	var payload []gammaMarket
	resp, err := r.http.R().
		SetContext(ctx).
		SetQueryParam("clob_token_ids", tokenID).
		SetResult(&payload).
		Get("/markets")
	if err != nil {
		return nil, errors.Wrap(err, "markets: gamma request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("markets: gamma status %d: %s", resp.StatusCode(), resp.String())
	}

	for i := range payload {
		m := toMarket(&payload[i])
		for _, id := range m.TokenIDs {
			if id == tokenID {
				return m, nil
			}
		}
	}
	r.log.WithField("token", tokenID).Debug("no market for token")
	return nil, nil
}

func toMarket(g *gammaMarket) *Market {
	m := &Market{
		ID:          g.ID,
		Question:    g.Question,
		Slug:        g.Slug,
		ConditionID: g.ConditionID,
		Category:    g.Category,
		NegRisk:     g.NegRisk,
		Active:      g.Active,
		Closed:      g.Closed,
		EndDate:     g.EndDate,
	}
	if g.OrderPriceMinTickSize > 0 {
		m.TickSize = strconv.FormatFloat(g.OrderPriceMinTickSize, 'f', -1, 64)
	}
	if g.ClobTokenIDs != "" {
		var ids []string
		if err := json.Unmarshal([]byte(g.ClobTokenIDs), &ids); err == nil {
			m.TokenIDs = ids
		}
	}
	return m
}
