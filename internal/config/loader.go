package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/travelops/importhub/internal/db"
	"github.com/travelops/importhub/pkg/logger"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// ImportConfig bounds upload handling so one oversized file cannot exhaust
// the process.
type ImportConfig struct {
	MaxUploadBytes   int64
	MaxRows          int
	PreviewRows      int
	ImpactSampleSize int
	StageWorkers     int
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Import   ImportConfig
	Log      logger.Config
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Import: ImportConfig{
			MaxUploadBytes:   32 << 20,
			MaxRows:          50000,
			PreviewRows:      10,
			ImpactSampleSize: 20,
			StageWorkers:     8,
		},
		Log: *logger.DefaultConfig(),
	}
}

// Load reads config.yaml from configPath and applies environment overrides
// with the IMPORTHUB_ prefix (e.g. IMPORTHUB_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("IMPORTHUB")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("log.level")
	v.BindEnv("log.format")

	// Missing config file is fine; defaults plus env cover it.
	_ = v.ReadInConfig()

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("import.max_upload_bytes") {
		cfg.Import.MaxUploadBytes = v.GetInt64("import.max_upload_bytes")
	}
	if v.IsSet("import.max_rows") {
		cfg.Import.MaxRows = v.GetInt("import.max_rows")
	}
	if v.IsSet("import.preview_rows") {
		cfg.Import.PreviewRows = v.GetInt("import.preview_rows")
	}
	if v.IsSet("import.impact_sample_size") {
		cfg.Import.ImpactSampleSize = v.GetInt("import.impact_sample_size")
	}
	if v.IsSet("import.stage_workers") {
		cfg.Import.StageWorkers = v.GetInt("import.stage_workers")
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}

	return cfg, nil
}
