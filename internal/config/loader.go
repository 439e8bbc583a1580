package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/sheetingest/internal/db"

	"github.com/spf13/viper"
)

// Backend names accepted in the process configuration.
const (
	SecretsBackendSecretManager = "secretmanager"
	SecretsBackendStatic        = "static"

	StorageBackendGCS = "gcs"
	StorageBackendDir = "dir"

	WarehouseBackendBigQuery = "bigquery"
	WarehouseBackendPostgres = "postgres"
	WarehouseBackendMemory   = "memory"
)

// App is the process level configuration. Run settings (dataset, bucket,
// files) are not part of it; they are resolved per invocation.
type App struct {
	Port              int
	LogLevel          string
	ProjectID         string
	CloudLogging      bool
	ReferenceSnapshot bool
	AllowedOrigins    []string
	RunTimeout        time.Duration

	Secrets   SecretsConfig
	Storage   StorageConfig
	Warehouse WarehouseConfig
	Retry     RetryConfig
}

// SecretsConfig selects the secret store.
type SecretsConfig struct {
	Backend string
	// Project hosts the secrets; defaults to ProjectID.
	Project string
	// Values feeds the static backend.
	Values map[string]string
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Backend string
	Dir     string
}

// WarehouseConfig selects the warehouse.
type WarehouseConfig struct {
	Backend  string
	Location string
	Database db.Config
}

// RetryConfig bounds fetch and load retries.
type RetryConfig struct {
	FetchAttempts int
	LoadAttempts  int
	Initial       time.Duration
	Max           time.Duration
	Multiplier    float64
}

// Load reads config.yaml from configPath when present, then applies
// environment overrides (warehouse.backend <- WAREHOUSE_BACKEND).
func Load(configPath string) (App, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dbDefaults := db.DefaultConfig()
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("cloud_logging", false)
	v.SetDefault("reference_snapshot", false)
	v.SetDefault("run_timeout", 540*time.Second)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("secrets.backend", SecretsBackendSecretManager)
	v.SetDefault("storage.backend", StorageBackendGCS)
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("warehouse.backend", WarehouseBackendBigQuery)
	v.SetDefault("warehouse.location", "US")
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.statement_timeout", dbDefaults.StatementTimeout)
	v.SetDefault("retry.fetch_attempts", 3)
	v.SetDefault("retry.load_attempts", 3)
	v.SetDefault("retry.initial", 5*time.Second)
	v.SetDefault("retry.max", 20*time.Second)
	v.SetDefault("retry.multiplier", 2.0)

	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("project_id", "PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("database.url", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return App{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := App{
		Port:              v.GetInt("port"),
		LogLevel:          v.GetString("log_level"),
		ProjectID:         strings.TrimSpace(v.GetString("project_id")),
		CloudLogging:      v.GetBool("cloud_logging"),
		ReferenceSnapshot: v.GetBool("reference_snapshot"),
		AllowedOrigins:    v.GetStringSlice("cors.allowed_origins"),
		RunTimeout:        v.GetDuration("run_timeout"),
		Secrets: SecretsConfig{
			Backend: strings.ToLower(v.GetString("secrets.backend")),
			Project: strings.TrimSpace(v.GetString("secrets.project")),
			Values:  map[string]string{},
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("storage.backend")),
			Dir:     v.GetString("storage.dir"),
		},
		Warehouse: WarehouseConfig{
			Backend:  strings.ToLower(v.GetString("warehouse.backend")),
			Location: v.GetString("warehouse.location"),
			Database: db.Config{
				URL:      v.GetString("database.url"),
				Host:     v.GetString("database.host"),
				Port:     v.GetInt("database.port"),
				User:     v.GetString("database.user"),
				Password: v.GetString("database.password"),
				DBName:   v.GetString("database.dbname"),
				SSLMode:  v.GetString("database.sslmode"),

				StatementTimeout: v.GetDuration("database.statement_timeout"),
			},
		},
		Retry: RetryConfig{
			FetchAttempts: v.GetInt("retry.fetch_attempts"),
			LoadAttempts:  v.GetInt("retry.load_attempts"),
			Initial:       v.GetDuration("retry.initial"),
			Max:           v.GetDuration("retry.max"),
			Multiplier:    v.GetFloat64("retry.multiplier"),
		},
	}
	if cfg.Secrets.Project == "" {
		cfg.Secrets.Project = cfg.ProjectID
	}
	for _, name := range OptionNames {
		if value := v.GetString("secrets.values." + name); value != "" {
			cfg.Secrets.Values[name] = value
		}
	}

	if err := cfg.validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

func (c App) validate() error {
	switch c.Secrets.Backend {
	case SecretsBackendSecretManager, SecretsBackendStatic:
	default:
		return fmt.Errorf("unknown secrets backend %q", c.Secrets.Backend)
	}
	switch c.Storage.Backend {
	case StorageBackendGCS, StorageBackendDir:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Warehouse.Backend {
	case WarehouseBackendBigQuery, WarehouseBackendPostgres, WarehouseBackendMemory:
	default:
		return fmt.Errorf("unknown warehouse backend %q", c.Warehouse.Backend)
	}
	if c.Retry.FetchAttempts < 1 || c.Retry.LoadAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	return nil
}
