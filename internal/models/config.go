package models

// Config 结构体定义了引擎的所有配置参数
type Config struct {
	DBPath          string      `json:"db_path"`           // badger state database directory
	ListenAddr      string      `json:"listen_addr"`       // control API bind address, e.g. ":8080"
	Mode            TradingMode `json:"mode"`              // default mode for symbols started without one
	IsTestnet       bool        `json:"is_testnet"`        // use the Binance testnet endpoints
	WSBaseURL       string      `json:"ws_base_url"`       // websocket feed base, e.g. "wss://stream.binance.com:9443"
	PollIntervalSec int         `json:"poll_interval_sec"` // pull-feed interval for paper mode (default 2)

	MaxInFlight         int     `json:"max_in_flight"`          // system-wide cap on concurrent gateway submissions
	RetryAttempts       int     `json:"retry_attempts"`         // gateway submit retries on transient failure
	RetryInitialDelayMs int     `json:"retry_initial_delay_ms"` // first retry delay, doubled per attempt
	GatewayTimeoutSec   int     `json:"gateway_timeout_sec"`    // per-call gateway timeout (default 5)
	PaperFeeRate        float64 `json:"paper_fee_rate"`         // flat fee rate applied to simulated fills
	PaperLatencyMs      int     `json:"paper_latency_ms"`       // synthetic fill latency in paper mode

	Risk      RiskConfig    `json:"risk"`
	LogConfig LogConfig     `json:"log"`
	Symbols   []SymbolStart `json:"symbols,omitempty"` // strategies to start at boot
}

// RiskConfig bounds what the risk guard lets through.
type RiskConfig struct {
	TotalCapital    float64 `json:"total_capital"`     // allocated capital in quote currency
	MaxPositionSize float64 `json:"max_position_size"` // per-symbol cap as a fraction of capital
	MaxDailyLoss    float64 `json:"max_daily_loss"`    // aggregate daily loss cap as a fraction of capital
}

// SymbolStart describes one strategy to launch at startup.
type SymbolStart struct {
	Symbol SymbolInfo  `json:"symbol"`
	Mode   TradingMode `json:"mode,omitempty"`
	Grid   GridConfig  `json:"grid"`
	DCA    DCAConfig   `json:"dca"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // max size of a single log file (MB)
	MaxBackups int    `json:"max_backups"` // rotated files to keep
	MaxAge     int    `json:"max_age"`     // days to keep rotated files
	Compress   bool   `json:"compress"`    // gzip rotated files
}

// Credentials are the exchange API keys, read from the environment.
type Credentials struct {
	APIKey    string `envconfig:"BINANCE_API_KEY"`
	SecretKey string `envconfig:"BINANCE_SECRET_KEY"`
}
