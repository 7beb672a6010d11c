// Command mempool-watch prints decoded pending matchOrders calls for the
// configured targets without placing anything. Use it to verify the watch
// list and the transport before running the follower.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/followbot/gofollow/internal/events"
	"github.com/followbot/gofollow/internal/fills"
	"github.com/followbot/gofollow/internal/mempool"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/logger"
	"github.com/followbot/gofollow/pkg/micros"
	"github.com/followbot/gofollow/pkg/ratelimit"
)

const (
	colorReset = "\033[0m"
	colorBuy   = "\033[32m"
	colorSell  = "\033[31m"
	colorDim   = "\033[2m"
	colorBold  = "\033[1m"
)

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		configPath = flag.String("config", getenv("FOLLOWER_CONFIG", ""), "config file path (.yaml, .yml or .json)")
		withFills  = flag.Bool("fills", false, "also stream confirmed OrderFilled logs")
		quiet      = flag.Bool("quiet", false, "suppress heartbeat lines")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Errorf("load config: %v", err)
		os.Exit(1)
	}

	// Console tool: keep the logger at warn so the event feed stays readable.
	if err := logger.Init(logger.Config{Level: "warn"}); err != nil {
		logrus.Errorf("init logger: %v", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	unsubscribe := bus.Subscribe(func(ev events.Event) { printEvent(ev, *quiet) })
	defer unsubscribe()

	limiter := ratelimit.NewManager()
	watcher := mempool.New(&cfg.Watch, bus, limiter)
	if err := watcher.Start(); err != nil {
		logrus.Errorf("start watcher: %v", err)
		os.Exit(1)
	}

	var feed *fills.Feed
	if *withFills || cfg.Fills.Enabled {
		feed = fills.New(&cfg.Fills, &cfg.Watch, bus)
		if err := feed.Start(); err != nil {
			logrus.Errorf("start fill feed: %v", err)
			os.Exit(1)
		}
	}

	fmt.Printf("watching %d wallets across %d contracts, transport=%s\n",
		len(cfg.Watch.Targets), len(cfg.Watch.Contracts), cfg.Watch.Transport)
	for _, t := range cfg.Watch.Targets {
		fmt.Printf("  target %s\n", t)
	}
	fmt.Println("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	watcher.Stop()
	if feed != nil {
		feed.Stop()
	}

	st := watcher.Stats()
	fmt.Printf("\nseen=%d admitted=%d published=%d decode_failures=%d reconnects=%d last_block=%d\n",
		st.TxSeen, st.CandidatesAdmitted, st.EventsPublished, st.DecodeFailures, st.Reconnects, st.LastBlock)
	if feed != nil {
		fs := feed.Stats()
		fmt.Printf("fill logs seen=%d matched=%d\n", fs.LogsSeen, fs.FillsMatched)
	}
}

func printEvent(ev events.Event, quiet bool) {
	switch e := ev.(type) {
	case events.PendingTradeEvent:
		printTrade(e)
	case events.HeartbeatEvent:
		if !quiet {
			fmt.Printf("%s[%s] block %d%s\n", colorDim, e.At.Format("15:04:05"), e.BlockNumber, colorReset)
		}
	case events.FillConfirmedEvent:
		fmt.Printf("[%s] %sconfirmed%s tx=%s log=%s maker=%s taker=%s makerAmt=%s takerAmt=%s\n",
			time.Now().Format("15:04:05"), colorBold, colorReset,
			short(e.TxHash), e.LogIndex, short(e.Maker), short(e.Taker),
			fmtAmount(e.MakerAmount), fmtAmount(e.TakerAmount))
	}
}

func printTrade(e events.PendingTradeEvent) {
	ts := e.SeenAt.Format("15:04:05")
	if e.Fill == nil {
		fmt.Printf("[%s] %s sent %s (decode failed) tx=%s\n", ts, short(e.Target), e.Function, short(e.Hash))
		return
	}
	f := e.Fill
	color := colorBuy
	if string(f.Side) == "SELL" {
		color = colorSell
	}
	fmt.Printf("[%s] %s %s%s%s %s shares=%s cash=%s token=%s tx=%s\n",
		ts, short(e.Target), color, f.Side, colorReset, f.Role,
		fmtAmount(f.SharesFilled), fmtAmount(f.CashFilled), short(f.TokenID), short(e.Hash))
}

// fmtAmount renders a micros-domain amount as a decimal, falling back to
// the raw integer when it exceeds int64.
func fmtAmount(v *big.Int) string {
	if v == nil {
		return "?"
	}
	if v.IsInt64() {
		return micros.Format(v.Int64())
	}
	return v.String()
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12] + ".."
	}
	return s
}
