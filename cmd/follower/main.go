// Command follower tails the Polygon mempool for matchOrders calls sent by
// the configured target wallets and mirrors their fills onto the CLOB at a
// reduced scale. Placement stays simulated until venue credentials are set
// and simulate_only is turned off.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/clob/client"
	"github.com/followbot/gofollow/clob/types"
	"github.com/followbot/gofollow/internal/copytrade"
	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/internal/fills"
	"github.com/followbot/gofollow/internal/journal"
	"github.com/followbot/gofollow/internal/markets"
	"github.com/followbot/gofollow/internal/mempool"
	"github.com/followbot/gofollow/internal/statusapi"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/ratelimit"
	"github.com/followbot/gofollow/pkg/secretstore"
	"github.com/followbot/gofollow/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	configPath := flag.String("config", getenv("FOLLOWER_CONFIG", ""), "config file path (.yaml, .yml or .json)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Errorf("load config: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}); err != nil {
		logrus.Errorf("init logger: %v", err)
		os.Exit(1)
	}

	fillCredsFromStore(&cfg.Venue)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	limiter := ratelimit.NewManager()

	venue, hasCreds, err := buildVenue(rootCtx, &cfg.Venue, limiter)
	if err != nil {
		logger.Errorf("venue client: %v", err)
		os.Exit(1)
	}

	bus := events.NewBus()

	var store *journal.Store
	var sink copytrade.Sink
	var detachJournal func()
	if cfg.Journal.Path != "" {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Errorf("open journal: %v", err)
			os.Exit(1)
		}
		sink = store
		detachJournal = store.Attach(bus)
		logger.Infof("journal at %s", cfg.Journal.Path)
	}

	resolver := markets.NewResolver(markets.Config{
		TTL:         time.Duration(cfg.Cache.MarketTTLSeconds) * time.Second,
		NegativeTTL: time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
		Limiter:     limiter,
	})

	placer := copytrade.NewPlacer(venue, &cfg.Copy, hasCreds)
	pipeline := copytrade.NewPipeline(resolver, placer, &cfg.Copy, sink)
	detachPipeline := pipeline.Attach(bus)

	watcher := mempool.New(&cfg.Watch, bus, limiter)
	if err := watcher.Start(); err != nil {
		logger.Errorf("start watcher: %v", err)
		os.Exit(1)
	}

	var feed *fills.Feed
	if cfg.Fills.Enabled {
		feed = fills.New(&cfg.Fills, &cfg.Watch, bus)
		if err := feed.Start(); err != nil {
			logger.Errorf("start fill feed: %v", err)
			os.Exit(1)
		}
	}

	var httpSrv *http.Server
	if cfg.Status.Enabled {
		src := statusapi.Sources{Watcher: watcher, Pipeline: pipeline, Markets: resolver}
		if feed != nil {
			src.Fills = feed
		}
		if store != nil {
			src.Journal = store
		}
		httpSrv = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           statusapi.New(src).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("status api listening on %s", cfg.Status.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("status api: %v", err)
			}
		}()
	}

	logger.Infof("following %d wallets across %d contracts, transport=%s",
		len(cfg.Watch.Targets), len(cfg.Watch.Contracts), cfg.Watch.Transport)
	if cfg.Copy.SimulateOnly || !hasCreds {
		logger.Warn("placements are simulated; set simulate_only=false and venue credentials to trade")
	}

	sd := shutdown.NewManager()
	sd.OnShutdown(func(ctx context.Context) {
		// Stop intake first so Wait sees no new work, then drain and close.
		watcher.Stop()
		if feed != nil {
			feed.Stop()
		}
		detachPipeline()
		pipeline.Wait()
		if detachJournal != nil {
			detachJournal()
		}
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warnf("close journal: %v", err)
			}
		}
		resolver.Close()
	})
	if httpSrv != nil {
		sd.OnShutdown(func(ctx context.Context) { _ = httpSrv.Shutdown(ctx) })
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	logger.Info("signal received, shutting down")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sd.Shutdown(ctx)
}

// fillCredsFromStore backfills venue credentials from the encrypted badger
// store when the environment and config file left them empty. The store is
// optional; no FOLLOWER_SECRET_DB means no lookup.
func fillCredsFromStore(venue *config.VenueConfig) {
	path := os.Getenv("FOLLOWER_SECRET_DB")
	if path == "" {
		return
	}
	key, err := secretstore.ParseKey(os.Getenv("FOLLOWER_SECRET_KEY"))
	if err != nil {
		logger.Warnf("secret store key: %v", err)
		return
	}
	st, err := secretstore.Open(secretstore.OpenOptions{Path: path, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		logger.Warnf("open secret store: %v", err)
		return
	}
	defer st.Close()

	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		v, found, err := st.GetString("env/" + name)
		if err != nil {
			logger.Warnf("secret store read %s: %v", name, err)
			return
		}
		if found {
			*dst = v
		}
	}
	fill(&venue.PrivateKey, "WALLET_PRIVATE_KEY")
	fill(&venue.FunderAddress, "WALLET_FUNDER_ADDRESS")
	fill(&venue.APIKey, "CLOB_API_KEY")
	fill(&venue.APISecret, "CLOB_API_SECRET")
	fill(&venue.APIPassphrase, "CLOB_API_PASSPHRASE")
}

// buildVenue constructs the CLOB client when a signing key is configured,
// deriving API credentials from the key if the triple is missing. A nil
// venue or hasCreds=false keeps the placer in simulation.
func buildVenue(ctx context.Context, vc *config.VenueConfig, limiter *ratelimit.Manager) (copytrade.Venue, bool, error) {
	if vc.PrivateKey == "" {
		if vc.HasAPICredentials() {
			logger.Warn("venue API credentials set but no wallet key; placements will be simulated")
		}
		return nil, false, nil
	}

	ccfg := client.Config{
		Host:          vc.Host,
		ChainID:       types.Chain(vc.ChainID),
		PrivateKey:    vc.PrivateKey,
		SignatureType: types.SignatureType(vc.SignatureType),
		Funder:        vc.FunderAddress,
		Limiter:       limiter,
	}
	if vc.HasAPICredentials() {
		ccfg.Creds = &types.ApiKeyCreds{
			Key:        vc.APIKey,
			Secret:     vc.APISecret,
			Passphrase: vc.APIPassphrase,
		}
	}
	cc, err := client.NewClient(ccfg)
	if err != nil {
		return nil, false, err
	}
	if ccfg.Creds == nil {
		creds, derr := cc.CreateOrDeriveAPIKey(ctx, nil)
		if derr != nil {
			logger.Warnf("deriving venue API credentials failed: %v; placements will be simulated", derr)
			return cc, false, nil
		}
		cc.SetCreds(creds)
		logger.Infof("venue API credentials derived: key=%s", keyPrefix(creds.Key))
	}
	return cc, true, nil
}

func keyPrefix(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
