package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Exchange ExchangeConfig
	Trading  TradingConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// ExchangeConfig - подключение и аутентификация Paradex
type ExchangeConfig struct {
	Env          string // prod или testnet
	L1Address    string
	L1PrivateKey string
	L2PrivateKey string

	// Таймауты и интервалы соединения
	HTTPTimeout      time.Duration
	TokenTTL         time.Duration // срок жизни JWT до обновления
	WSReconnectDelay time.Duration
	WSPingInterval   time.Duration
}

// TradingConfig - торговые параметры движка
type TradingConfig struct {
	Market string

	// Ограничение размера одного клипа; nil = без ограничения
	OrderSizeCap *decimal.Decimal

	Leverage           int
	TakerFeePct        decimal.Decimal
	MakerFeePct        decimal.Decimal // может быть отрицательной (rebate)
	MinProfitUSD       decimal.Decimal
	MinProfitSpread    decimal.Decimal // минимальная дельта цен для полноглубинного скана
	MaxOpenBatches     int
	BalanceReservedPct decimal.Decimal // доля свободного залога, доступная под маржу

	BookDepth      int
	PollInterval   time.Duration
	BalanceRefresh time.Duration
}

// ServerConfig - настройки HTTP сервера статуса
type ServerConfig struct {
	Host string
	Port int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string // json или console
}

// WSURL возвращает адрес WebSocket API для выбранного окружения
func (e ExchangeConfig) WSURL() string {
	return fmt.Sprintf("wss://ws.api.%s.paradex.trade/v1", e.Env)
}

// RESTBaseURL возвращает базовый адрес REST API для выбранного окружения
func (e ExchangeConfig) RESTBaseURL() string {
	return fmt.Sprintf("https://api.%s.paradex.trade/v1", e.Env)
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env, если присутствует, подхватывается до чтения окружения.
func Load() (*Config, error) {
	// Отсутствие .env не ошибка - все значения могут прийти из окружения
	_ = godotenv.Load()

	cfg := &Config{
		Exchange: ExchangeConfig{
			Env:          getEnv("PARADEX_ENV", "testnet"),
			L1Address:    getEnv("PARADEX_L1_ADDRESS", ""),
			L1PrivateKey: getEnv("PARADEX_L1_PRIVATE_KEY", ""),
			L2PrivateKey: getEnv("PARADEX_L2_PRIVATE_KEY", ""),

			HTTPTimeout:      getEnvAsDuration("PARADEX_HTTP_TIMEOUT", 10*time.Second),
			TokenTTL:         getEnvAsDuration("PARADEX_TOKEN_TTL", 25*time.Minute),
			WSReconnectDelay: getEnvAsDuration("PARADEX_WS_RECONNECT_DELAY", 2*time.Second),
			WSPingInterval:   getEnvAsDuration("PARADEX_WS_PING_INTERVAL", 20*time.Second),
		},
		Trading: TradingConfig{
			Market:             getEnv("PARADEX_MARKET", ""),
			OrderSizeCap:       getEnvAsOptDecimal("PARADEX_ORDER_SIZE"),
			Leverage:           getEnvAsInt("PARADEX_LEVERAGE", 1),
			TakerFeePct:        getEnvAsDecimal("PARADEX_TAKER_FEE_PCT", "0.001"),
			MakerFeePct:        getEnvAsDecimal("PARADEX_MAKER_FEE_PCT", "0"),
			MinProfitUSD:       getEnvAsDecimal("PARADEX_MIN_PROFIT_USD", "1"),
			MinProfitSpread:    getEnvAsDecimal("PARADEX_MIN_PROFIT_SPREAD", "0"),
			MaxOpenBatches:     getEnvAsInt("PARADEX_MAX_OPEN_ORDERS", 1),
			BalanceReservedPct: getEnvAsDecimal("PARADEX_BALANCE_RESERVED_PCT", "1.0"),
			BookDepth:          getEnvAsInt("PARADEX_BOOK_DEPTH", 15),
			PollInterval:       getEnvAsDuration("PARADEX_POLL_INTERVAL", 1*time.Second),
			BalanceRefresh:     getEnvAsDuration("PARADEX_BALANCE_REFRESH", 30*time.Second),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level:  getEnv("PARADEX_LOG_LEVEL", "info"),
			Format: getEnv("PARADEX_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет обязательные значения и числовые диапазоны.
// Это единственный fail-fast путь процесса: после успешного старта
// движок предпочитает деградацию падению.
func (c *Config) validate() error {
	if c.Exchange.L1Address == "" {
		return fmt.Errorf("PARADEX_L1_ADDRESS is required")
	}
	if c.Exchange.L1PrivateKey == "" && c.Exchange.L2PrivateKey == "" {
		return fmt.Errorf("provide PARADEX_L1_PRIVATE_KEY or PARADEX_L2_PRIVATE_KEY")
	}
	if c.Trading.Market == "" {
		return fmt.Errorf("PARADEX_MARKET is required")
	}

	if c.Exchange.Env != "prod" && c.Exchange.Env != "testnet" {
		return fmt.Errorf("PARADEX_ENV must be prod or testnet, got %q", c.Exchange.Env)
	}

	if c.Trading.Leverage < 1 {
		return fmt.Errorf("PARADEX_LEVERAGE must be >= 1, got %d", c.Trading.Leverage)
	}
	if c.Trading.MaxOpenBatches < 1 {
		return fmt.Errorf("PARADEX_MAX_OPEN_ORDERS must be >= 1, got %d", c.Trading.MaxOpenBatches)
	}
	if c.Trading.BalanceReservedPct.Sign() <= 0 {
		return fmt.Errorf("PARADEX_BALANCE_RESERVED_PCT must be positive, got %s", c.Trading.BalanceReservedPct)
	}
	if c.Trading.OrderSizeCap != nil && c.Trading.OrderSizeCap.Sign() <= 0 {
		return fmt.Errorf("PARADEX_ORDER_SIZE must be positive, got %s", c.Trading.OrderSizeCap)
	}
	if c.Trading.BookDepth < 1 {
		return fmt.Errorf("PARADEX_BOOK_DEPTH must be >= 1, got %d", c.Trading.BookDepth)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}
	return value
}

func getEnvAsOptDecimal(key string) *decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return nil
	}
	return &value
}
