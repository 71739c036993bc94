package config

import (
	"encoding/json"
	"os"

	"github.com/dzaharov/vaultsync/internal/flagx"
	"github.com/dzaharov/vaultsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON config
// files; after unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddr                   string         `json:"endpoint_addr"`
	DatabaseDSN                    string         `json:"database_dsn"`
	SecretKey                      string         `json:"secret_key"`
	AccessTokenValidityDuration    timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration   timex.Duration `json:"refresh_token_validity_duration"`
	RefreshTokenRememberMeDuration timex.Duration `json:"refresh_token_remember_me_duration"`
	LockoutThreshold               int            `json:"lockout_threshold"`
	LockoutDuration                timex.Duration `json:"lockout_duration"`
	MinClientVersion               string         `json:"min_client_version"`
	RetentionDailyDays             int            `json:"retention_daily_days"`
	RetentionWeeklyWeeks           int            `json:"retention_weekly_weeks"`
	RetentionMonthlyMonths         int            `json:"retention_monthly_months"`
	RetentionVersions              int            `json:"retention_versions"`
	RetentionCount                 int            `json:"retention_count"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; if no
// path is given, nothing is loaded. Unreadable or invalid files panic, as
// running with a half-applied configuration is worse than not starting.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	config.RefreshTokenRememberMeDuration = c.RefreshTokenRememberMeDuration.Duration
	config.LockoutThreshold = c.LockoutThreshold
	config.LockoutDuration = c.LockoutDuration.Duration
	config.MinClientVersion = c.MinClientVersion
	config.RetentionDailyDays = c.RetentionDailyDays
	config.RetentionWeeklyWeeks = c.RetentionWeeklyWeeks
	config.RetentionMonthlyMonths = c.RetentionMonthlyMonths
	config.RetentionVersions = c.RetentionVersions
	config.RetentionCount = c.RetentionCount
}
