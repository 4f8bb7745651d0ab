package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

type Config struct {
	Env             string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort         int           `yaml:"api_port" env:"API_PORT" env-default:"4200"`
	ApiHost         string        `yaml:"api_host" env:"API_HOST" env-default:"0.0.0.0"`
	TokenSecret     string        `yaml:"token_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
	Storage         string        `yaml:"storage" env:"STORAGE" env-default:"postgres"`
	CatalogSeedPath string        `yaml:"catalog_seed_path" env:"CATALOG_SEED_PATH"`
	CorsOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"*"`
	Postgres        `yaml:"postgres"`
	Mongo           `yaml:"mongo"`
}

type Postgres struct {
	URL  string `yaml:"url" env:"DATABASE_URL"`
	Host string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User string `yaml:"user" env:"POSTGRES_USER" env-default:"tcg"`
	Pass string `yaml:"pass" env:"POSTGRES_PASSWORD" env-default:"tcg"`
	Db   string `yaml:"db" env:"POSTGRES_DB" env-default:"tcg"`
}

type Mongo struct {
	URI      string `yaml:"uri" env:"ATLAS_URI" env-default:"mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"tcg"`
}

// DSN returns the explicit connection string or assembles one from parts.
func (p Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Pass, p.Host, p.Port, p.Db)
}

func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}
	return cfg
}

// Load reads the YAML file at path, if any, and applies environment
// overrides. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.Storage {
	case StoragePostgres, StorageMongo, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
