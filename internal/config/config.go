package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	Storage StorageConfig `yaml:"storage"`
	Tokens  TokensConfig  `yaml:"tokens"`
	HTTP    HTTPConfig    `yaml:"http"`
}

type StorageConfig struct {
	// Driver selects the backend: "sqlite" or "mongodb".
	Driver string      `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path   string      `yaml:"path" env:"STORAGE_PATH"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE"`
}

type TokensConfig struct {
	Secret        string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env-default:"720h"`
	RefreshPepper string        `yaml:"refresh_pepper" env:"REFRESH_PEPPER"`
}

type HTTPConfig struct {
	Port         int           `yaml:"port" env-default:"8080"`
	Timeout      time.Duration `yaml:"timeout" env-default:"10s"`
	CookieName   string        `yaml:"cookie_name" env-default:"refresh_token"`
	CookieDomain string        `yaml:"cookie_domain"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}

// MustLoad resolves the config path from the CONFIG_PATH env variable.
func MustLoad() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/local.yaml"
	}
	return LoadConfig(path)
}
