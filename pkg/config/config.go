// Package config loads process configuration from an optional YAML or
// JSON file merged with environment variables. File values win over
// environment values except for credentials, which prefer the
// environment so secrets can stay out of config files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/followbot/gofollow/pkg/micros"
)

// Compiled-in protocol defaults. They are regular configuration fields
// so tests can substitute arbitrary addresses.
const (
	// DefaultSelector is the 4-byte selector of the order-matching call.
	DefaultSelector = "0xa4a6c5a5"

	// DefaultFeeModule is the fee-module contract the operator routes
	// match calls through. Always appended to the watched contract set.
	DefaultFeeModule = "0x56C79347e95530c01A2FC76E732f9566dA16E113"
)

// DefaultWatchContracts are the exchange contracts whose inbound
// transactions carry match calls.
var DefaultWatchContracts = []string{
	"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", // exchange
	"0xC5d563A36AE78145C45a50134d48A1215220f80a", // neg-risk exchange
}

// WatchConfig drives the mempool watcher.
type WatchConfig struct {
	Targets           []string // trader addresses to follow (needle + fill attribution)
	Contracts         []string // tx destination allowlist
	FeeModule         string   // appended to Contracts
	Selector          string   // match-call selector, 0x-prefixed 4 bytes
	Transport         string   // "subscription" (full tx push) or "stream" (hash stream + fetch)
	WSURL             string
	BackupWSURL       string
	RPCURL            string // tx-by-hash lookups for the stream transport
	HeartbeatInterval uint64 // emit liveness when blockNumber%interval == 0
	RecencyCapacity   int    // dedup set size
}

// CacheConfig holds resolver TTLs in seconds.
type CacheConfig struct {
	MarketTTLSeconds   int
	NegativeTTLSeconds int // "not found" results expire sooner
}

// CopyConfig drives intent derivation and placement.
type CopyConfig struct {
	Scale        string   // decimal scaling factor, e.g. "0.1"
	SlippageBps  int64    // limit price tolerance in basis points
	Sides        []string // allowed sides: BUY, SELL
	OrderType    string   // "market" or "limit"
	SimulateOnly bool
}

// VenueConfig is the order venue connection and signing identity.
type VenueConfig struct {
	Host          string
	ChainID       int64
	PrivateKey    string
	FunderAddress string
	SignatureType int
	APIKey        string
	APISecret     string
	APIPassphrase string
}

// FillsConfig gates the on-chain fill confirmation feed.
type FillsConfig struct {
	Enabled bool
	WSURL   string // defaults to the watcher URL
}

// JournalConfig controls the local audit trail. Empty path disables it.
type JournalConfig struct {
	Path string
}

// StatusConfig gates the HTTP stats endpoint.
type StatusConfig struct {
	Enabled bool
	Addr    string
}

// Config is the application configuration.
type Config struct {
	Watch    WatchConfig
	Cache    CacheConfig
	Copy     CopyConfig
	Venue    VenueConfig
	Fills    FillsConfig
	Journal  JournalConfig
	Status   StatusConfig
	LogLevel string
	LogFile  string
}

var globalConfig *Config
var configFilePath string

// SetConfigPath sets the file path used by Load.
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath returns the file path used by Load.
func GetConfigPath() string {
	return configFilePath
}

// Get returns the loaded global configuration, nil before Load.
func Get() *Config {
	return globalConfig
}

// ConfigFile mirrors the on-disk layout. Pointer fields distinguish
// "absent" from a meaningful zero value.
type ConfigFile struct {
	Watch struct {
		Targets           []string `yaml:"targets" json:"targets"`
		Contracts         []string `yaml:"contracts" json:"contracts"`
		FeeModule         string   `yaml:"fee_module" json:"fee_module"`
		Selector          string   `yaml:"selector" json:"selector"`
		Transport         string   `yaml:"transport" json:"transport"`
		WSURL             string   `yaml:"ws_url" json:"ws_url"`
		BackupWSURL       string   `yaml:"backup_ws_url" json:"backup_ws_url"`
		RPCURL            string   `yaml:"rpc_url" json:"rpc_url"`
		HeartbeatInterval uint64   `yaml:"heartbeat_interval" json:"heartbeat_interval"`
		RecencyCapacity   int      `yaml:"recency_capacity" json:"recency_capacity"`
	} `yaml:"watch" json:"watch"`
	Cache struct {
		MarketTTLSeconds   int `yaml:"market_ttl_seconds" json:"market_ttl_seconds"`
		NegativeTTLSeconds int `yaml:"negative_ttl_seconds" json:"negative_ttl_seconds"`
	} `yaml:"cache" json:"cache"`
	Copy struct {
		Scale        string   `yaml:"scale" json:"scale"`
		SlippageBps  *int64   `yaml:"slippage_bps" json:"slippage_bps"`
		Sides        []string `yaml:"sides" json:"sides"`
		OrderType    string   `yaml:"order_type" json:"order_type"`
		SimulateOnly *bool    `yaml:"simulate_only" json:"simulate_only"`
	} `yaml:"copy" json:"copy"`
	Venue struct {
		Host          string `yaml:"host" json:"host"`
		ChainID       int64  `yaml:"chain_id" json:"chain_id"`
		PrivateKey    string `yaml:"private_key" json:"private_key"`
		FunderAddress string `yaml:"funder_address" json:"funder_address"`
		SignatureType *int   `yaml:"signature_type" json:"signature_type"`
		APIKey        string `yaml:"api_key" json:"api_key"`
		APISecret     string `yaml:"api_secret" json:"api_secret"`
		APIPassphrase string `yaml:"api_passphrase" json:"api_passphrase"`
	} `yaml:"venue" json:"venue"`
	Fills struct {
		Enabled *bool  `yaml:"enabled" json:"enabled"`
		WSURL   string `yaml:"ws_url" json:"ws_url"`
	} `yaml:"fills" json:"fills"`
	Journal struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"journal" json:"journal"`
	Status struct {
		Enabled *bool  `yaml:"enabled" json:"enabled"`
		Addr    string `yaml:"addr" json:"addr"`
	} `yaml:"status" json:"status"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Load loads configuration from the path set via SetConfigPath.
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile builds the configuration from defaults, environment
// overrides, then the optional file, and validates the result.
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	cfg := defaults()
	applyEnv(cfg)

	if filePath != "" {
		file, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
		applyFile(cfg, file)
	}

	// Credentials prefer the environment even over the file.
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Venue.PrivateKey = v
	}
	if v := os.Getenv("CLOB_API_KEY"); v != "" {
		cfg.Venue.APIKey = v
	}
	if v := os.Getenv("CLOB_API_SECRET"); v != "" {
		cfg.Venue.APISecret = v
	}
	if v := os.Getenv("CLOB_API_PASSPHRASE"); v != "" {
		cfg.Venue.APIPassphrase = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	cfg.normalize()

	globalConfig = cfg
	configFilePath = filePath
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Watch: WatchConfig{
			Contracts:         append([]string(nil), DefaultWatchContracts...),
			FeeModule:         DefaultFeeModule,
			Selector:          DefaultSelector,
			Transport:         "subscription",
			WSURL:             "wss://polygon-bor-rpc.publicnode.com",
			BackupWSURL:       "wss://polygon.drpc.org",
			RPCURL:            "https://polygon-rpc.com",
			HeartbeatInterval: 10,
			RecencyCapacity:   1000,
		},
		Cache: CacheConfig{
			MarketTTLSeconds:   600,
			NegativeTTLSeconds: 60,
		},
		Copy: CopyConfig{
			Scale:        "0.1",
			SlippageBps:  100,
			Sides:        []string{"BUY", "SELL"},
			OrderType:    "market",
			SimulateOnly: true,
		},
		Venue: VenueConfig{
			Host:    "https://clob.polymarket.com",
			ChainID: 137,
		},
		Journal: JournalConfig{
			Path: "data/journal.db",
		},
		Status: StatusConfig{
			Addr: ":8787",
		},
		LogLevel: "info",
		LogFile:  "logs/follower.log",
	}
}

func applyEnv(cfg *Config) {
	if v := getListEnv("WATCH_TARGETS"); len(v) > 0 {
		cfg.Watch.Targets = v
	}
	if v := getListEnv("WATCH_CONTRACTS"); len(v) > 0 {
		cfg.Watch.Contracts = v
	}
	cfg.Watch.FeeModule = getEnv("WATCH_FEE_MODULE", cfg.Watch.FeeModule)
	cfg.Watch.Selector = getEnv("WATCH_SELECTOR", cfg.Watch.Selector)
	cfg.Watch.Transport = getEnv("WATCH_TRANSPORT", cfg.Watch.Transport)
	cfg.Watch.WSURL = getEnv("WATCH_WS_URL", cfg.Watch.WSURL)
	cfg.Watch.BackupWSURL = getEnv("WATCH_BACKUP_WS_URL", cfg.Watch.BackupWSURL)
	cfg.Watch.RPCURL = getEnv("WATCH_RPC_URL", cfg.Watch.RPCURL)
	cfg.Watch.HeartbeatInterval = uint64(parseIntEnv("HEARTBEAT_INTERVAL", int(cfg.Watch.HeartbeatInterval)))
	cfg.Watch.RecencyCapacity = parseIntEnv("RECENCY_CAPACITY", cfg.Watch.RecencyCapacity)

	cfg.Cache.MarketTTLSeconds = parseIntEnv("MARKET_TTL_SECONDS", cfg.Cache.MarketTTLSeconds)
	cfg.Cache.NegativeTTLSeconds = parseIntEnv("NEGATIVE_TTL_SECONDS", cfg.Cache.NegativeTTLSeconds)

	cfg.Copy.Scale = getEnv("COPY_SCALE", cfg.Copy.Scale)
	cfg.Copy.SlippageBps = parseInt64Env("COPY_SLIPPAGE_BPS", cfg.Copy.SlippageBps)
	if v := getListEnv("COPY_SIDES"); len(v) > 0 {
		cfg.Copy.Sides = v
	}
	cfg.Copy.OrderType = getEnv("COPY_ORDER_TYPE", cfg.Copy.OrderType)
	cfg.Copy.SimulateOnly = parseBoolEnv("SIMULATE_ONLY", cfg.Copy.SimulateOnly)

	cfg.Venue.Host = getEnv("CLOB_HOST", cfg.Venue.Host)
	cfg.Venue.ChainID = parseInt64Env("CHAIN_ID", cfg.Venue.ChainID)
	cfg.Venue.PrivateKey = getEnv("WALLET_PRIVATE_KEY", cfg.Venue.PrivateKey)
	cfg.Venue.FunderAddress = getEnv("WALLET_FUNDER_ADDRESS", cfg.Venue.FunderAddress)
	cfg.Venue.SignatureType = parseIntEnv("SIGNATURE_TYPE", cfg.Venue.SignatureType)
	cfg.Venue.APIKey = getEnv("CLOB_API_KEY", cfg.Venue.APIKey)
	cfg.Venue.APISecret = getEnv("CLOB_API_SECRET", cfg.Venue.APISecret)
	cfg.Venue.APIPassphrase = getEnv("CLOB_API_PASSPHRASE", cfg.Venue.APIPassphrase)

	cfg.Fills.Enabled = parseBoolEnv("FILLS_ENABLED", cfg.Fills.Enabled)
	cfg.Fills.WSURL = getEnv("FILLS_WS_URL", cfg.Fills.WSURL)

	cfg.Journal.Path = getEnv("JOURNAL_PATH", cfg.Journal.Path)

	cfg.Status.Enabled = parseBoolEnv("STATUS_ENABLED", cfg.Status.Enabled)
	cfg.Status.Addr = getEnv("STATUS_ADDR", cfg.Status.Addr)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
}

func applyFile(cfg *Config, file *ConfigFile) {
	if file == nil {
		return
	}
	if len(file.Watch.Targets) > 0 {
		cfg.Watch.Targets = file.Watch.Targets
	}
	if len(file.Watch.Contracts) > 0 {
		cfg.Watch.Contracts = file.Watch.Contracts
	}
	if file.Watch.FeeModule != "" {
		cfg.Watch.FeeModule = file.Watch.FeeModule
	}
	if file.Watch.Selector != "" {
		cfg.Watch.Selector = file.Watch.Selector
	}
	if file.Watch.Transport != "" {
		cfg.Watch.Transport = file.Watch.Transport
	}
	if file.Watch.WSURL != "" {
		cfg.Watch.WSURL = file.Watch.WSURL
	}
	if file.Watch.BackupWSURL != "" {
		cfg.Watch.BackupWSURL = file.Watch.BackupWSURL
	}
	if file.Watch.RPCURL != "" {
		cfg.Watch.RPCURL = file.Watch.RPCURL
	}
	if file.Watch.HeartbeatInterval > 0 {
		cfg.Watch.HeartbeatInterval = file.Watch.HeartbeatInterval
	}
	if file.Watch.RecencyCapacity > 0 {
		cfg.Watch.RecencyCapacity = file.Watch.RecencyCapacity
	}

	if file.Cache.MarketTTLSeconds > 0 {
		cfg.Cache.MarketTTLSeconds = file.Cache.MarketTTLSeconds
	}
	if file.Cache.NegativeTTLSeconds > 0 {
		cfg.Cache.NegativeTTLSeconds = file.Cache.NegativeTTLSeconds
	}

	if file.Copy.Scale != "" {
		cfg.Copy.Scale = file.Copy.Scale
	}
	if file.Copy.SlippageBps != nil {
		cfg.Copy.SlippageBps = *file.Copy.SlippageBps
	}
	if len(file.Copy.Sides) > 0 {
		cfg.Copy.Sides = file.Copy.Sides
	}
	if file.Copy.OrderType != "" {
		cfg.Copy.OrderType = file.Copy.OrderType
	}
	if file.Copy.SimulateOnly != nil {
		cfg.Copy.SimulateOnly = *file.Copy.SimulateOnly
	}

	if file.Venue.Host != "" {
		cfg.Venue.Host = file.Venue.Host
	}
	if file.Venue.ChainID > 0 {
		cfg.Venue.ChainID = file.Venue.ChainID
	}
	if file.Venue.PrivateKey != "" {
		cfg.Venue.PrivateKey = file.Venue.PrivateKey
	}
	if file.Venue.FunderAddress != "" {
		cfg.Venue.FunderAddress = file.Venue.FunderAddress
	}
	if file.Venue.SignatureType != nil {
		cfg.Venue.SignatureType = *file.Venue.SignatureType
	}
	if file.Venue.APIKey != "" {
		cfg.Venue.APIKey = file.Venue.APIKey
	}
	if file.Venue.APISecret != "" {
		cfg.Venue.APISecret = file.Venue.APISecret
	}
	if file.Venue.APIPassphrase != "" {
		cfg.Venue.APIPassphrase = file.Venue.APIPassphrase
	}

	if file.Fills.Enabled != nil {
		cfg.Fills.Enabled = *file.Fills.Enabled
	}
	if file.Fills.WSURL != "" {
		cfg.Fills.WSURL = file.Fills.WSURL
	}

	if file.Journal.Path != "" {
		cfg.Journal.Path = file.Journal.Path
	}

	if file.Status.Enabled != nil {
		cfg.Status.Enabled = *file.Status.Enabled
	}
	if file.Status.Addr != "" {
		cfg.Status.Addr = file.Status.Addr
	}

	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFile != "" {
		cfg.LogFile = file.LogFile
	}
}

// loadConfigFile parses YAML or JSON depending on the extension.
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var file ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %s (want .yaml, .yml or .json)", ext)
	}
	return &file, nil
}

// Validate rejects configurations the process cannot safely start with.
// Missing credentials are not an error here: the placer degrades to
// simulation instead.
func (c *Config) Validate() error {
	if len(c.Watch.Targets) == 0 {
		return fmt.Errorf("at least one watch target address is required")
	}
	for _, addr := range c.Watch.Targets {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid watch target address: %s", addr)
		}
	}
	for _, addr := range c.Watch.Contracts {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid watch contract address: %s", addr)
		}
	}
	if c.Watch.FeeModule != "" && !common.IsHexAddress(c.Watch.FeeModule) {
		return fmt.Errorf("invalid fee module address: %s", c.Watch.FeeModule)
	}
	if !isHexSelector(c.Watch.Selector) {
		return fmt.Errorf("invalid selector %q (want 4 hex bytes)", c.Watch.Selector)
	}
	switch c.Watch.Transport {
	case "subscription", "stream":
	default:
		return fmt.Errorf("unknown watch transport %q (want subscription or stream)", c.Watch.Transport)
	}
	if c.Watch.HeartbeatInterval == 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be greater than 0")
	}
	if c.Watch.RecencyCapacity <= 0 {
		return fmt.Errorf("RECENCY_CAPACITY must be greater than 0")
	}

	if c.Cache.MarketTTLSeconds <= 0 {
		return fmt.Errorf("MARKET_TTL_SECONDS must be greater than 0")
	}
	if c.Cache.NegativeTTLSeconds <= 0 {
		return fmt.Errorf("NEGATIVE_TTL_SECONDS must be greater than 0")
	}

	scale, err := micros.Parse(c.Copy.Scale)
	if err != nil {
		return fmt.Errorf("COPY_SCALE: %w", err)
	}
	if scale <= 0 {
		return fmt.Errorf("COPY_SCALE must be greater than 0")
	}
	if c.Copy.SlippageBps < 0 || c.Copy.SlippageBps > 10000 {
		return fmt.Errorf("COPY_SLIPPAGE_BPS must be between 0 and 10000")
	}
	if len(c.Copy.Sides) == 0 {
		return fmt.Errorf("COPY_SIDES must allow at least one side")
	}
	for _, side := range c.Copy.Sides {
		switch strings.ToUpper(side) {
		case "BUY", "SELL":
		default:
			return fmt.Errorf("unknown copy side %q (want BUY or SELL)", side)
		}
	}
	switch c.Copy.OrderType {
	case "market", "limit":
	default:
		return fmt.Errorf("unknown order type %q (want market or limit)", c.Copy.OrderType)
	}

	switch c.Venue.ChainID {
	case 137, 80002:
	default:
		return fmt.Errorf("unsupported chain id %d", c.Venue.ChainID)
	}
	if c.Venue.FunderAddress != "" && !common.IsHexAddress(c.Venue.FunderAddress) {
		return fmt.Errorf("invalid funder address: %s", c.Venue.FunderAddress)
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("STATUS_ADDR is required when the status endpoint is enabled")
	}
	return nil
}

// normalize lowercases addresses and uppercases sides so later
// comparisons are byte-equal.
func (c *Config) normalize() {
	for i, addr := range c.Watch.Targets {
		c.Watch.Targets[i] = strings.ToLower(addr)
	}
	for i, addr := range c.Watch.Contracts {
		c.Watch.Contracts[i] = strings.ToLower(addr)
	}
	c.Watch.FeeModule = strings.ToLower(c.Watch.FeeModule)
	c.Watch.Selector = strings.ToLower(c.Watch.Selector)
	for i, side := range c.Copy.Sides {
		c.Copy.Sides[i] = strings.ToUpper(side)
	}
	if c.Fills.WSURL == "" {
		c.Fills.WSURL = c.Watch.WSURL
	}
}

// WatchedContracts returns the tx destination allowlist with the fee
// module appended, lowercased and deduplicated.
func (c *WatchConfig) WatchedContracts() []string {
	out := make([]string, 0, len(c.Contracts)+1)
	seen := make(map[string]bool, len(c.Contracts)+1)
	for _, addr := range c.Contracts {
		a := strings.ToLower(addr)
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	if c.FeeModule != "" {
		a := strings.ToLower(c.FeeModule)
		if !seen[a] {
			out = append(out, a)
		}
	}
	return out
}

// ScaleMicros returns the parsed scaling factor. Call after Validate.
func (c *CopyConfig) ScaleMicros() int64 {
	m, err := micros.Parse(c.Scale)
	if err != nil {
		return 0
	}
	return m
}

// SideAllowed reports whether side passed the allowlist.
func (c *CopyConfig) SideAllowed(side string) bool {
	for _, s := range c.Sides {
		if strings.EqualFold(s, side) {
			return true
		}
	}
	return false
}

// HasAPICredentials reports whether the three-part venue API key is set.
func (c *VenueConfig) HasAPICredentials() bool {
	return c.APIKey != "" && c.APISecret != "" && c.APIPassphrase != ""
}

func isHexSelector(s string) bool {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != 8 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma-separated environment variable, dropping
// empty items.
func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
