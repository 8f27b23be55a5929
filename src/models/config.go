package models

// MConfig Structure
type MConfig struct {
	Name           string          `yaml:"name"`
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	LogLevel       string          `yaml:"log_level"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Symbols        []string        `yaml:"symbols"`
	Stream         MStreamConfig   `yaml:"stream"`
	Server         MServerConfig   `yaml:"server"`
	Detector       MDetectorConfig `yaml:"detector"`
	Storage        MStorageConfig  `yaml:"storage"`
	Snapshot       MSnapshotConfig `yaml:"snapshot"`
}

type MStreamConfig struct {
	URL                string         `yaml:"url"`
	DelayedURL         string         `yaml:"delayed_url"`
	APIKey             string         `yaml:"api_key"`
	AuthTimeoutSecs    int            `yaml:"auth_timeout_seconds"`
	StalenessSecs      int            `yaml:"staleness_seconds"`
	WatchdogSecs       int            `yaml:"watchdog_interval_seconds"`
	Reconnect          MBackoffConfig `yaml:"reconnect"`
	ReconnectOnLimit   bool           `yaml:"reconnect_on_capacity_limit"`
	SyntheticHeartbeat bool           `yaml:"synthetic_heartbeat"`
}

type MBackoffConfig struct {
	MinMs       int     `yaml:"min_ms"`
	MaxMs       int     `yaml:"max_ms"`
	Factor      float64 `yaml:"factor"`
	MaxAttempts int     `yaml:"max_attempts"`
}

type MServerConfig struct {
	HeartbeatSecs int `yaml:"heartbeat_interval_seconds"`
	IdleSecs      int `yaml:"idle_timeout_seconds"`
}

type MDetectorConfig struct {
	MinVolume      float64        `yaml:"min_volume"`
	BufferCap1     int            `yaml:"buffer_cap_1"`
	BufferCap5     int            `yaml:"buffer_cap_5"`
	BufferCap60    int            `yaml:"buffer_cap_60"`
	Weights        map[string]int `yaml:"confluence_weights"`
	RuleMinFactors map[string]int `yaml:"rule_min_factors"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MSnapshotConfig struct {
	BaseURL        string `yaml:"base_url"`
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	PollSecs       int    `yaml:"poll_interval_seconds"`
}
