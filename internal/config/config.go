// Package config loads funnel configuration from a .env file, an optional
// YAML overlay, and process environment variables, in that order of
// increasing precedence. Every key in Config is required; a missing key
// is a startup failure, never a silently-substituted default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrMissingKey is returned by Load when a required key has no value after
// merging the env file, the YAML file, and the process environment.
type ErrMissingKey struct {
	Key string
}

func (e ErrMissingKey) Error() string {
	return fmt.Sprintf("config: missing required key %q", e.Key)
}

// Thresholds mirrors the five-threshold check shared by C3 and C4.
type Thresholds struct {
	Sharpe            float64
	WinRate           float64
	TradesByTimeframe map[string][2]int // timeframe -> [is_min, oos_min]
	Expectancy        float64
	MaxDrawdown       float64
}

// Config is every key the core consumes, per the external-interfaces
// contract. Field names match the dotted config keys with '.' -> CamelCase.
type Config struct {
	PoolMaxSize int
	PoolMinScore float64

	Thresholds Thresholds

	OOSMaxDegradation float64
	OOSWindowDays     int
	ISWindowDays      int

	WFAWindowPercentages  []float64
	WFAMinExpectancy      float64
	WFAMinProfitableWindows int

	ShuffleIterations int
	ShuffleDataDays   int
	ShuffleSymbol     string

	RiskPerTradePct          float64
	RiskMaxConcurrentPositions int

	ExchangeFeeRate     float64
	ExchangeSlippagePct float64
	ExchangeMinNotional float64

	RetestIntervalDays int
	WorkersCount       int
	WorkersStaleTimeoutMinutes int

	CoinUniverseSize int

	StoreDSN string
}

// defaultTradesByTimeframe is the table from the IS/OOS Evaluator contract:
// 5m->500/50, 15m->300/30, 30m->200/20, 1h->100/10, 2h->50/5. Used by
// Defaults() only; Load requires THRESHOLDS_TRADES_BY_TIMEFRAME explicitly.
func defaultTradesByTimeframe() map[string][2]int {
	return map[string][2]int{
		"5m":  {500, 50},
		"15m": {300, 30},
		"30m": {200, 20},
		"1h":  {100, 10},
		"2h":  {50, 5},
	}
}

// parseTradesByTimeframe decodes THRESHOLDS_TRADES_BY_TIMEFRAME, a
// comma-separated list of "timeframe:is_min:oos_min" triples, e.g.
// "5m:500:50,15m:300:30,30m:200:20,1h:100:10,2h:50:5".
func parseTradesByTimeframe(raw string) (map[string][2]int, error) {
	out := map[string][2]int{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: THRESHOLDS_TRADES_BY_TIMEFRAME: bad entry %q", entry)
		}
		isMin, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("config: THRESHOLDS_TRADES_BY_TIMEFRAME: %w", err)
		}
		oosMin, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("config: THRESHOLDS_TRADES_BY_TIMEFRAME: %w", err)
		}
		out[strings.TrimSpace(parts[0])] = [2]int{isMin, oosMin}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: THRESHOLDS_TRADES_BY_TIMEFRAME: empty")
	}
	return out, nil
}

// parseFloatList decodes a comma-separated list of floats, e.g.
// WFA_WINDOW_PERCENTAGES="0.25,0.50,0.75,1.00".
func parseFloatList(key, raw string) ([]float64, error) {
	var out []float64
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		f, err := strconv.ParseFloat(entry, 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("config: %s: empty", key)
	}
	return out, nil
}

// Load reads .env (if present), an optional YAML file at yamlPath (if
// non-empty and present), then applies process environment overrides, and
// validates every required key is set.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	raw := map[string]string{}
	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			var y map[string]string
			if err := yaml.Unmarshal(data, &y); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
			}
			for k, v := range y {
				raw[strings.ToUpper(k)] = v
			}
		}
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			raw[parts[0]] = parts[1]
		}
	}

	get := func(key string) (string, error) {
		if v, ok := raw[key]; ok && v != "" {
			return v, nil
		}
		return "", ErrMissingKey{Key: key}
	}
	getFloat := func(key string, dst *float64) error {
		s, err := get(key)
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = f
		return nil
	}
	getInt := func(key string, dst *int) error {
		s, err := get(key)
		if err != nil {
			return err
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = i
		return nil
	}

	cfg := &Config{}

	type binding struct {
		key string
		fn  func() error
	}
	bindings := []binding{
		{"POOL_MAX_SIZE", func() error { return getInt("POOL_MAX_SIZE", &cfg.PoolMaxSize) }},
		{"POOL_MIN_SCORE", func() error { return getFloat("POOL_MIN_SCORE", &cfg.PoolMinScore) }},
		{"THRESHOLDS_SHARPE", func() error { return getFloat("THRESHOLDS_SHARPE", &cfg.Thresholds.Sharpe) }},
		{"THRESHOLDS_WIN_RATE", func() error { return getFloat("THRESHOLDS_WIN_RATE", &cfg.Thresholds.WinRate) }},
		{"THRESHOLDS_EXPECTANCY", func() error { return getFloat("THRESHOLDS_EXPECTANCY", &cfg.Thresholds.Expectancy) }},
		{"THRESHOLDS_MAX_DRAWDOWN", func() error { return getFloat("THRESHOLDS_MAX_DRAWDOWN", &cfg.Thresholds.MaxDrawdown) }},
		{"THRESHOLDS_TRADES_BY_TIMEFRAME", func() error {
			s, err := get("THRESHOLDS_TRADES_BY_TIMEFRAME")
			if err != nil {
				return err
			}
			tbt, err := parseTradesByTimeframe(s)
			if err != nil {
				return err
			}
			cfg.Thresholds.TradesByTimeframe = tbt
			return nil
		}},
		{"OOS_MAX_DEGRADATION", func() error { return getFloat("OOS_MAX_DEGRADATION", &cfg.OOSMaxDegradation) }},
		{"OOS_WINDOW_DAYS", func() error { return getInt("OOS_WINDOW_DAYS", &cfg.OOSWindowDays) }},
		{"IS_WINDOW_DAYS", func() error { return getInt("IS_WINDOW_DAYS", &cfg.ISWindowDays) }},
		{"WFA_WINDOW_PERCENTAGES", func() error {
			s, err := get("WFA_WINDOW_PERCENTAGES")
			if err != nil {
				return err
			}
			pcts, err := parseFloatList("WFA_WINDOW_PERCENTAGES", s)
			if err != nil {
				return err
			}
			cfg.WFAWindowPercentages = pcts
			return nil
		}},
		{"WFA_MIN_EXPECTANCY", func() error { return getFloat("WFA_MIN_EXPECTANCY", &cfg.WFAMinExpectancy) }},
		{"WFA_MIN_PROFITABLE_WINDOWS", func() error { return getInt("WFA_MIN_PROFITABLE_WINDOWS", &cfg.WFAMinProfitableWindows) }},
		{"SHUFFLE_ITERATIONS", func() error { return getInt("SHUFFLE_ITERATIONS", &cfg.ShuffleIterations) }},
		{"SHUFFLE_DATA_DAYS", func() error { return getInt("SHUFFLE_DATA_DAYS", &cfg.ShuffleDataDays) }},
		{"SHUFFLE_SYMBOL", func() error { v, err := get("SHUFFLE_SYMBOL"); cfg.ShuffleSymbol = v; return err }},
		{"RISK_PER_TRADE_PCT", func() error { return getFloat("RISK_PER_TRADE_PCT", &cfg.RiskPerTradePct) }},
		{"RISK_MAX_CONCURRENT_POSITIONS", func() error {
			return getInt("RISK_MAX_CONCURRENT_POSITIONS", &cfg.RiskMaxConcurrentPositions)
		}},
		{"EXCHANGE_FEE_RATE", func() error { return getFloat("EXCHANGE_FEE_RATE", &cfg.ExchangeFeeRate) }},
		{"EXCHANGE_SLIPPAGE_PCT", func() error { return getFloat("EXCHANGE_SLIPPAGE_PCT", &cfg.ExchangeSlippagePct) }},
		{"EXCHANGE_MIN_NOTIONAL", func() error { return getFloat("EXCHANGE_MIN_NOTIONAL", &cfg.ExchangeMinNotional) }},
		{"RETEST_INTERVAL_DAYS", func() error { return getInt("RETEST_INTERVAL_DAYS", &cfg.RetestIntervalDays) }},
		{"WORKERS_COUNT", func() error { return getInt("WORKERS_COUNT", &cfg.WorkersCount) }},
		{"WORKERS_STALE_TIMEOUT_MINUTES", func() error {
			return getInt("WORKERS_STALE_TIMEOUT_MINUTES", &cfg.WorkersStaleTimeoutMinutes)
		}},
		{"COIN_UNIVERSE_SIZE", func() error { return getInt("COIN_UNIVERSE_SIZE", &cfg.CoinUniverseSize) }},
		{"STORE_DSN", func() error { v, err := get("STORE_DSN"); cfg.StoreDSN = v; return err }},
	}
	for _, b := range bindings {
		if err := b.fn(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the typical values spec.md cites, for local development
// and tests. Never used to paper over a missing key in Load.
func Defaults() *Config {
	return &Config{
		PoolMaxSize:  300,
		PoolMinScore: 40,
		Thresholds: Thresholds{
			Sharpe:            0.3,
			WinRate:           0.35,
			Expectancy:        0.002,
			MaxDrawdown:       0.50,
			TradesByTimeframe: defaultTradesByTimeframe(),
		},
		OOSMaxDegradation:          0.50,
		OOSWindowDays:              60,
		ISWindowDays:               120,
		WFAWindowPercentages:       []float64{0.25, 0.50, 0.75, 1.00},
		WFAMinExpectancy:           0.002,
		WFAMinProfitableWindows:    4,
		ShuffleIterations:          100,
		ShuffleDataDays:            30,
		ShuffleSymbol:              "BTCUSDT",
		RiskPerTradePct:            0.02,
		RiskMaxConcurrentPositions: 10,
		ExchangeFeeRate:            0.00045,
		ExchangeSlippagePct:        0.0005,
		ExchangeMinNotional:        10,
		RetestIntervalDays:         3,
		WorkersCount:               6,
		WorkersStaleTimeoutMinutes: 30,
		CoinUniverseSize:           30,
		StoreDSN:                   "file:alphafunnel.db?cache=shared",
	}
}
