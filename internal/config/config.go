package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	Tokens     `yaml:"tokens"`
	RabbitMQ   `yaml:"rabbitmq"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	HTTPServer `yaml:"http_server"`
	RateLimit  `yaml:"rate_limit"`
	Email      `yaml:"email"`
	Platform   `yaml:"platform"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"password" env-default:""`
	DB       int    `yaml:"db" env-default:"0"`
}

type Tokens struct {
	AccessTokenTTL          time.Duration `yaml:"access_token_ttl" env-required:"true"`
	RefreshTokenTTL         time.Duration `yaml:"refresh_token_ttl" env-required:"true"`
	AccessTokenSecret       string        `yaml:"access_token_secret" env-required:"true"`
	RefreshTokenSecret      string        `yaml:"refresh_token_secret" env-required:"true"`
	VerificationTokenTTL    time.Duration `yaml:"verification_token_ttl" env-required:"true"`
	VerificationTokenSecret string        `yaml:"verification_token_secret" env-required:"true"`
	ResetTokenTTL           time.Duration `yaml:"reset_token_ttl" env-default:"30m"`
	ResetTokenSecret        string        `yaml:"reset_token_secret" env-required:"true"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

// RateLimit выбирает хранилище счетчиков: memory для одного инстанса,
// redis для нескольких.
type RateLimit struct {
	Store           string        `yaml:"store" env-default:"memory"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env-default:"10m"`
}

type Email struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username" env-default:""`
	Password string `yaml:"password" env-default:""`
}

type Platform struct {
	EmailDomain string `yaml:"email_domain" env-default:"university.edu"`
	BaseURL     string `yaml:"base_url" env-default:"http://localhost:8080"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}
