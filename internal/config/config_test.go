package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "secret")
	t.Setenv("STORAGE", "memory")
	t.Setenv("API_PORT", "9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.TokenSecret)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 9000, cfg.ApiPort)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.CorsOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`env: prod
api_port: 8081
token_secret: from-file
token_ttl: 30m
storage: mongo
mongo:
  uri: mongodb://mongo:27017
  database: cards
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8081, cfg.ApiPort)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, StorageMongo, cfg.Storage)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
	assert.Equal(t, "cards", cfg.Mongo.Database)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("STORAGE", "redis")
	_, err = Load("")
	assert.ErrorContains(t, err, `unknown storage "redis"`)
}

func TestDSN(t *testing.T) {
	p := Postgres{User: "u", Pass: "p", Host: "db", Port: "5432", Db: "tcg"}
	assert.Equal(t, "postgres://u:p@db:5432/tcg?sslmode=disable", p.DSN())

	p.URL = "postgres://explicit"
	assert.Equal(t, "postgres://explicit", p.DSN())
}
