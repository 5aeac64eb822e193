package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# options-lab configuration
# Every key may be overridden with OPTLAB_<SECTION>_<KEY>, e.g. OPTLAB_ANALYSIS_RISK_FREE_RATE.

[analysis]
# Annual risk-free rate (decimal)
risk_free_rate = 0.05
# Volatility used when a snapshot has none
default_volatility = 0.30
# Historical volatility reported when there is not enough price history
historical_vol_fallback = 0.2
# Trading days of log returns used for historical volatility
historical_window = 252

[options]
min_days_to_expiration = 1
max_days_to_expiration = 365
default_days_to_expiration = 30

[pricing]
# Volatility returned when the implied volatility search fails
fallback_volatility = 0.30
vol_lower_bound = 0.001
vol_upper_bound = 5.0
tolerance = 1e-5
max_iterations = 500

[simulation]
default_paths = 5000
max_paths = 10000
steps = 252
# 0 draws a fresh seed per run; the seed used is reported with each result
seed = 0
# 0 uses one worker per CPU
workers = 0
chunk_size = 250

[strategy]
# Strike ladder spans spot * (1 +/- strike_range)
strike_range = 0.2
num_strikes = 5
# Shares per stock leg (multiple of 100)
shares = 100

[risk]
var_confidence_levels = [0.01, 0.05, 0.10]
# Volatility for positions without an implied volatility
portfolio_volatility = 0.30
# Optional YAML file replacing the scenarios below
# scenarios_file = "scenarios.yaml"

[[risk.scenarios]]
name = "bear_market"
price_change = -0.2
vol_change = 0.5

[[risk.scenarios]]
name = "bull_market"
price_change = 0.2
vol_change = -0.2

[[risk.scenarios]]
name = "high_volatility"
price_change = 0.0
vol_change = 1.0

[[risk.scenarios]]
name = "crash"
price_change = -0.4
vol_change = 2.0

[[risk.scenarios]]
name = "rally"
price_change = 0.3
vol_change = -0.1

[market]
symbol = "GGAL"
# Directory of <SYMBOL>.json snapshots (relative to this directory)
snapshot_dir = "snapshots"
cache_ttl = "60s"
timeout = "30s"
retry_attempts = 3
history_days = 365

[market.redis]
# Leave empty for the in-memory cache
addr = ""
password = ""
db = 0
prefix = "optlab:snapshot:"

[store]
path = "optlab.db"

[server]
host = "127.0.0.1"
port = 8080
read_timeout = "15s"
write_timeout = "60s"
# Requests per second and burst per server
rate_limit = 20.0
burst = 40

[logging]
# trace, debug, info, warn, error, disabled
level = "info"
json = false
file = false
# file_path = "logs/optlab.log"
max_size = 100
max_backups = 7
max_age = 30
`

// Template returns the commented default configuration.
func Template() string {
	return configTemplate
}

// ConfigFile returns the path of the main config file in configDir.
func ConfigFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
