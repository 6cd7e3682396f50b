package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
	Users   []User        `yaml:"users"`
	Minio   MinioConfig   `yaml:"minio"`
	OCR     OCRConfig     `yaml:"ocr"`
	LLM     LLMConfig     `yaml:"llm"`
	Store   StoreConfig   `yaml:"store"`
	VIN     VINConfig     `yaml:"vin"`
	Scoring ScoringConfig `yaml:"scoring"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int   `yaml:"port"`
	RateLimit       int   `yaml:"rate_limit"`
	TenantRateLimit int   `yaml:"tenant_rate_limit"` // per tenant per minute on LLM routes
	MaxUploadMB     int64 `yaml:"max_upload_mb"`
	ShutdownGrace   int   `yaml:"shutdown_grace_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text or pretty
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Tenant       string `yaml:"tenant"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// Enabled reports whether uploads are mirrored to object storage.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type OCRConfig struct {
	Provider  string          `yaml:"provider"` // mineru or tesseract
	Mineru    MineruConfig    `yaml:"mineru"`
	Tesseract TesseractConfig `yaml:"tesseract"`
}

type MineruConfig struct {
	APIURL       string `yaml:"api_url"`
	APIToken     string `yaml:"api_token"`
	ModelVersion string `yaml:"model_version"`
	PollInterval int    `yaml:"poll_interval_seconds"`
	MaxPolls     int    `yaml:"max_polls"`
}

type TesseractConfig struct {
	PdftoppmPath  string `yaml:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path"`
	DPI           int    `yaml:"dpi"`
}

type LLMConfig struct {
	Extraction     ProviderConfig `yaml:"extraction"`
	Chat           ProviderConfig `yaml:"chat"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
}

// ProviderConfig points at an OpenAI compatible chat completions endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite or postgres
	DSN    string `yaml:"dsn"`
}

type VINConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ScoringConfig struct {
	LockStrategy string `yaml:"lock_strategy"`
	CreditTier   int    `yaml:"credit_tier"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the YAML file at path, applies environment overrides (a .env
// file in the working directory is honoured) and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with only defaults and environment overrides.
func Default() *Config {
	_ = godotenv.Load()
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	setString(&c.Log.Level, "LEASEIQ_LOG_LEVEL")
	setString(&c.Log.Format, "LEASEIQ_LOG_FORMAT")
	setInt(&c.Server.Port, "LEASEIQ_PORT")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.LLM.Extraction.APIKey, "GROQ_API_KEY")
	setString(&c.LLM.Chat.APIKey, "OPENROUTER_API_KEY")
	setString(&c.Store.Driver, "LEASEIQ_STORE_DRIVER")
	setString(&c.Store.DSN, "DATABASE_URL")
	setString(&c.OCR.Provider, "LEASEIQ_OCR_PROVIDER")
	setString(&c.OCR.Mineru.APIToken, "LEASEIQ_MINERU_TOKEN")
	setString(&c.Minio.AccessKey, "LEASEIQ_MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "LEASEIQ_MINIO_SECRET_KEY")
	setString(&c.Scoring.LockStrategy, "LEASEIQ_LOCK_STRATEGY")
	if v := os.Getenv("LEASEIQ_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 100
	}
	if c.Server.TenantRateLimit == 0 {
		c.Server.TenantRateLimit = 30
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 20
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.OCR.Provider == "" {
		c.OCR.Provider = "tesseract"
	}
	if c.OCR.Mineru.ModelVersion == "" {
		c.OCR.Mineru.ModelVersion = "vlm"
	}
	if c.OCR.Mineru.PollInterval == 0 {
		c.OCR.Mineru.PollInterval = 3
	}
	if c.OCR.Mineru.MaxPolls == 0 {
		c.OCR.Mineru.MaxPolls = 100
	}
	if c.OCR.Tesseract.PdftoppmPath == "" {
		c.OCR.Tesseract.PdftoppmPath = "pdftoppm"
	}
	if c.OCR.Tesseract.TesseractPath == "" {
		c.OCR.Tesseract.TesseractPath = "tesseract"
	}
	if c.OCR.Tesseract.DPI == 0 {
		c.OCR.Tesseract.DPI = 300
	}
	if c.LLM.Extraction.BaseURL == "" {
		c.LLM.Extraction.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.Extraction.Model == "" {
		c.LLM.Extraction.Model = "llama-3.3-70b-versatile"
	}
	if c.LLM.Chat.BaseURL == "" {
		c.LLM.Chat.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.LLM.Chat.Model == "" {
		c.LLM.Chat.Model = "meta-llama/llama-3.3-70b-instruct"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "contracts.db"
	}
	if c.VIN.BaseURL == "" {
		c.VIN.BaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"
	}
	if c.VIN.TimeoutSeconds == 0 {
		c.VIN.TimeoutSeconds = 10
	}
	if c.Scoring.LockStrategy == "" {
		c.Scoring.LockStrategy = "price_apr"
	}
	if c.Scoring.CreditTier == 0 {
		c.Scoring.CreditTier = 720
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "leaseiq.contracts"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// LLMTimeout is the per-request timeout for LLM calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			*dst = n
		}
	}
}
