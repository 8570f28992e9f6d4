package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/yoda/internal/db"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/repository"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Store    StoreConfig
	Search   SearchConfig
	// RegistryPath names an optional YAML file of extra entity definitions.
	RegistryPath string
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type StoreConfig struct {
	Driver         string
	ConflictPolicy domain.ConflictPolicy
}

type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Load reads config.yaml from configPath, then applies YODA_* environment
// overrides (YODA_DATABASE_HOST, YODA_STORE_DRIVER, ...). A missing file is
// not an error.
func Load(configPath string) (Config, error) {
	dbDefaults := db.DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("YODA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.conflict_policy", string(domain.ConflictPolicyDrop))
	v.SetDefault("search.default_limit", repository.DefaultSearchLimit)
	v.SetDefault("search.max_limit", repository.MaxSearchLimit)
	v.SetDefault("registry.path", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		log.Println("No config.yaml found, using defaults and env vars")
	} else {
		log.Printf("Loaded %s", v.ConfigFileUsed())
	}

	policy, err := domain.ParseConflictPolicy(strings.ToLower(v.GetString("store.conflict_policy")))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Database: db.Config{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: splitList(v.GetStringSlice("server.allowed_origins")),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(v.GetString("store.driver")),
			ConflictPolicy: policy,
		},
		Search: SearchConfig{
			DefaultLimit: v.GetInt("search.default_limit"),
			MaxLimit:     v.GetInt("search.max_limit"),
		},
		RegistryPath: v.GetString("registry.path"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type check.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("invalid store.driver %q: must be %s or %s", c.Store.Driver, DriverPostgres, DriverMemory)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit %d is below search.default_limit %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	return nil
}

// splitList also accepts comma separated entries, the form env vars take.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
