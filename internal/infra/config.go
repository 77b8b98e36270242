package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации хоста.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает HTTP и gRPC слушатели.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Лимит на маршруты предсказаний
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig: driver = pgx (PostgreSQL) или sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (уведомления и дневные счетчики).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig — только проверка токенов, выпуск живет в другом сервисе.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// EngineConfig — процесс-воркер, артефакты модели и арбитр.
type EngineConfig struct {
	WorkerPath    string        `mapstructure:"worker_path"`
	ModelRoot     string        `mapstructure:"model_root"`
	ModelVersion  string        `mapstructure:"model_version"` // пусто — последняя версия
	Timeout       time.Duration `mapstructure:"timeout"`
	KillGrace     time.Duration `mapstructure:"kill_grace"`
	ThresholdHour float64       `mapstructure:"threshold_hours"`

	// Зона пользователей: в ней считаются "сегодня" и дневной лимит уведомлений
	Timezone string         `mapstructure:"timezone"`
	Location *time.Location `mapstructure:"-"`

	// Предохранитель перед запуском воркера
	CBFailures uint32        `mapstructure:"cb_failures"`
	CBTimeout  time.Duration `mapstructure:"cb_timeout"`

	// Асинхронный журнал предсказаний
	LogBufferSize    int           `mapstructure:"log_buffer_size"`
	LogFlushInterval time.Duration `mapstructure:"log_flush_interval"`
}

// NotifyConfig: backend = redis | desktop | log.
type NotifyConfig struct {
	Backend    string `mapstructure:"backend"`
	DailyLimit int    `mapstructure:"daily_limit"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENGINE_TIMEOUT=30s перекроет engine.timeout
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.Engine.ThresholdHour < 4 || cfg.Engine.ThresholdHour > 6 {
		return nil, fmt.Errorf("engine.threshold_hours must be within [4, 6], got %v", cfg.Engine.ThresholdHour)
	}

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	cfg.Engine.Location = loc

	// PEM-ключ может прийти прямо в ENV (Docker/K8s), иначе читаем файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50052)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("engine.worker_path", "riskworker")
	v.SetDefault("engine.model_root", "./models")
	v.SetDefault("engine.timeout", 20*time.Second)
	v.SetDefault("engine.kill_grace", 2*time.Second)
	v.SetDefault("engine.threshold_hours", 6.0)
	v.SetDefault("engine.timezone", "Local")
	v.SetDefault("engine.cb_failures", 5)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.log_buffer_size", 1000)
	v.SetDefault("engine.log_flush_interval", 1*time.Second)
	v.SetDefault("notify.backend", "redis")
	v.SetDefault("notify.daily_limit", 2)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
