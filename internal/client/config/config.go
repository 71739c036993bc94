package config

// Config holds runtime settings for the vault CLI.
//
// Fields:
//   - ServerAddr: base URL of the vault server.
//   - ClientVersion: version string reported with every vault submission.
type Config struct {
	ServerAddr    string
	ClientVersion string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "http://127.0.0.1:8080"
	c.ClientVersion = "1.0.0"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
