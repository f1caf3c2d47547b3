package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poorman/alphafunnel/internal/config"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"POOL_MAX_SIZE":                  "300",
		"POOL_MIN_SCORE":                 "40",
		"THRESHOLDS_SHARPE":              "0.3",
		"THRESHOLDS_WIN_RATE":            "0.35",
		"THRESHOLDS_EXPECTANCY":          "0.002",
		"THRESHOLDS_MAX_DRAWDOWN":        "0.50",
		"THRESHOLDS_TRADES_BY_TIMEFRAME": "5m:500:50,15m:300:30,30m:200:20,1h:100:10,2h:50:5",
		"OOS_MAX_DEGRADATION":            "0.50",
		"OOS_WINDOW_DAYS":                "60",
		"IS_WINDOW_DAYS":                 "120",
		"WFA_WINDOW_PERCENTAGES":         "0.25,0.50,0.75,1.00",
		"WFA_MIN_EXPECTANCY":             "0.002",
		"WFA_MIN_PROFITABLE_WINDOWS":     "4",
		"SHUFFLE_ITERATIONS":             "100",
		"SHUFFLE_DATA_DAYS":              "30",
		"SHUFFLE_SYMBOL":                 "BTCUSDT",
		"RISK_PER_TRADE_PCT":             "0.02",
		"RISK_MAX_CONCURRENT_POSITIONS":  "10",
		"EXCHANGE_FEE_RATE":              "0.00045",
		"EXCHANGE_SLIPPAGE_PCT":          "0.0005",
		"EXCHANGE_MIN_NOTIONAL":          "10",
		"RETEST_INTERVAL_DAYS":           "3",
		"WORKERS_COUNT":                  "6",
		"WORKERS_STALE_TIMEOUT_MINUTES":  "30",
		"COIN_UNIVERSE_SIZE":             "30",
		"STORE_DSN":                      "file:test.db",
	}
}

func TestLoad_SucceedsWhenEveryRequiredKeyPresent(t *testing.T) {
	env := requiredEnv()
	for k, v := range env {
		require.NoError(t, os.Setenv(k, v))
	}
	defer func() {
		for k := range env {
			os.Unsetenv(k)
		}
	}()

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.PoolMaxSize)
	assert.Equal(t, "BTCUSDT", cfg.ShuffleSymbol)
	assert.Equal(t, 30, cfg.CoinUniverseSize)
}

func TestLoad_FailsWhenARequiredKeyIsMissing(t *testing.T) {
	for k := range requiredEnv() {
		k := k
		t.Run(k, func(t *testing.T) {
			env := requiredEnv()
			delete(env, k)
			for key, v := range env {
				os.Setenv(key, v)
			}
			os.Unsetenv(k)
			defer func() {
				for key := range requiredEnv() {
					os.Unsetenv(key)
				}
			}()

			_, err := config.Load("")
			require.Error(t, err)
			var missing config.ErrMissingKey
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, k, missing.Key)
		})
	}
}

func TestDefaults_NeverErrorsAndMatchesSpecCitedValues(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, 60, cfg.OOSWindowDays)
	assert.Equal(t, 120, cfg.ISWindowDays)
	assert.Equal(t, []float64{0.25, 0.50, 0.75, 1.00}, cfg.WFAWindowPercentages)
	assert.Equal(t, [2]int{100, 10}, cfg.Thresholds.TradesByTimeframe["1h"])
}
