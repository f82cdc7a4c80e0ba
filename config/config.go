package config

import (
	"crypto/rand" // Needed for JWT secret generation
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Auth   AuthConfig   `mapstructure:"auth"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Backup BackupConfig `mapstructure:"backup"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    string `mapstructure:"port"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Backend      string        `mapstructure:"backend"` // file, memory, redis, sqlite, mongo
	FilePath     string        `mapstructure:"file"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
	EnableBackup bool          `mapstructure:"backup"`
	WatchFile    bool          `mapstructure:"watch"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	SQLitePath string `mapstructure:"sqlite_path"`

	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// AuthConfig holds the session token signing secret.
type AuthConfig struct {
	JwtSecret     string `mapstructure:"jwt_secret"`      // The actual secret key
	JwtSecretFile string `mapstructure:"jwt_secret_file"` // Path to the file containing the secret
}

// HTTPConfig holds settings for the public HTTP surface.
type HTTPConfig struct {
	CORSOrigins          []string `mapstructure:"cors_origins"`
	BookingRatePerMinute float64  `mapstructure:"booking_rate_per_minute"`
	BookingBurst         int      `mapstructure:"booking_burst"`
}

// BackupConfig controls scheduled snapshots. An empty schedule disables them.
type BackupConfig struct {
	Schedule string `mapstructure:"schedule"`
	Dir      string `mapstructure:"dir"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

const (
	envPrefix = "STUDIOBOOK"

	defaultAddress       = "0.0.0.0"
	defaultPort          = "8080"
	defaultBackend       = "file"
	defaultDbFile        = "./studio.json" // Relative to working dir
	defaultSaveInterval  = 3 * time.Second
	defaultEnableBackup  = true
	defaultRedisAddr     = "localhost:6379"
	defaultRedisPrefix   = "studiobook:"
	defaultSQLitePath    = "./studio.db"
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "studiobook"
	defaultMongoColl     = "kv"
	defaultJwtKeyFile    = "./studiobook.key" // Default file if we generate a key
	defaultBookingRate   = 5.0
	defaultBookingBurst  = 3
	defaultBackupDir     = "./backups"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

var validBackends = map[string]bool{
	"file": true, "memory": true, "redis": true, "sqlite": true, "mongo": true,
}

// LoadConfig loads configuration from defaults, an optional YAML config file,
// a .env file, environment variables (STUDIOBOOK_ prefix) and command-line flags.
// Flags take precedence over environment variables, which take precedence over
// the config file, which takes precedence over defaults.
func LoadConfig(args []string) (*Config, error) {
	// .env only fills variables that are not already set in the environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logrus.Warnf("Failed to load .env file: %v", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("studiobook", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to an optional YAML config file")
	fs.String("address", defaultAddress, "Server listen address (Env: STUDIOBOOK_SERVER_ADDRESS)")
	fs.String("port", defaultPort, "Server listen port (Env: STUDIOBOOK_SERVER_PORT)")
	fs.String("store", defaultBackend, "Store backend: file, memory, redis, sqlite, mongo (Env: STUDIOBOOK_STORE_BACKEND)")
	fs.String("db-file", defaultDbFile, "Path to the JSON store file (Env: STUDIOBOOK_STORE_FILE)")
	fs.Duration("save-interval", defaultSaveInterval, "Debounce interval for saving the store file (Env: STUDIOBOOK_STORE_SAVE_INTERVAL)")
	fs.Bool("enable-backup", defaultEnableBackup, "Keep a .bak copy of the store file before saving (Env: STUDIOBOOK_STORE_BACKUP)")
	fs.Bool("watch-file", false, "Reload the store file when another process rewrites it (Env: STUDIOBOOK_STORE_WATCH)")
	fs.String("redis-addr", defaultRedisAddr, "Redis address for the redis backend (Env: STUDIOBOOK_STORE_REDIS_ADDR)")
	fs.String("sqlite-path", defaultSQLitePath, "SQLite file for the sqlite backend (Env: STUDIOBOOK_STORE_SQLITE_PATH)")
	fs.String("mongo-uri", defaultMongoURI, "MongoDB URI for the mongo backend (Env: STUDIOBOOK_STORE_MONGO_URI)")
	fs.String("jwt-secret-file", "", "Path to file containing the token signing secret (Env: STUDIOBOOK_AUTH_JWT_SECRET_FILE)")
	fs.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins (Env: STUDIOBOOK_HTTP_CORS_ORIGINS)")
	fs.String("backup-schedule", "", "Cron expression for store snapshots, empty disables (Env: STUDIOBOOK_BACKUP_SCHEDULE)")
	fs.String("backup-dir", defaultBackupDir, "Directory for store snapshots (Env: STUDIOBOOK_BACKUP_DIR)")
	fs.String("log-level", defaultLogLevel, "Log level (Env: STUDIOBOOK_LOG_LEVEL)")
	fs.String("log-format", defaultLogFormat, "Log format: text or json (Env: STUDIOBOOK_LOG_FORMAT)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	flagKeys := map[string]string{
		"address":         "server.address",
		"port":            "server.port",
		"store":           "store.backend",
		"db-file":         "store.file",
		"save-interval":   "store.save_interval",
		"enable-backup":   "store.backup",
		"watch-file":      "store.watch",
		"redis-addr":      "store.redis_addr",
		"sqlite-path":     "store.sqlite_path",
		"mongo-uri":       "store.mongo_uri",
		"jwt-secret-file": "auth.jwt_secret_file",
		"cors-origins":    "http.cors_origins",
		"backup-schedule": "backup.schedule",
		"backup-dir":      "backup.dir",
		"log-level":       "log.level",
		"log-format":      "log.format",
	}
	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("failed to bind flag '%s': %w", flagName, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", *configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if !validBackends[cfg.Store.Backend] {
		return nil, fmt.Errorf("unknown store backend '%s', expected file, memory, redis, sqlite or mongo", cfg.Store.Backend)
	}

	if cfg.Store.SaveInterval < 0 {
		logrus.Warnf("Negative save interval %s, saving immediately instead.", cfg.Store.SaveInterval)
		cfg.Store.SaveInterval = 0
	}

	// --- JWT Secret Handling ---
	// Priority: File (flag/env) > Env Var > Default Key File > Generate
	secretSource, err := resolveJwtSecret(cfg)
	if err != nil {
		return nil, err
	}

	// --- Store Path Validation ---
	if cfg.Store.Backend == "file" {
		absDbPath, err := filepath.Abs(cfg.Store.FilePath)
		if err != nil {
			return nil, fmt.Errorf("could not determine absolute path for db-file '%s': %w", cfg.Store.FilePath, err)
		}
		cfg.Store.FilePath = absDbPath

		// The file may not exist yet, but it must not be a directory.
		if fileInfo, err := os.Stat(cfg.Store.FilePath); err == nil && fileInfo.IsDir() {
			return nil, fmt.Errorf("store path '%s' points to a directory, not a file", cfg.Store.FilePath)
		}
	}

	logConfiguration(cfg, secretSource)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", defaultAddress)
	v.SetDefault("server.port", defaultPort)

	v.SetDefault("store.backend", defaultBackend)
	v.SetDefault("store.file", defaultDbFile)
	v.SetDefault("store.save_interval", defaultSaveInterval)
	v.SetDefault("store.backup", defaultEnableBackup)
	v.SetDefault("store.watch", false)
	v.SetDefault("store.redis_addr", defaultRedisAddr)
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", defaultRedisPrefix)
	v.SetDefault("store.sqlite_path", defaultSQLitePath)
	v.SetDefault("store.mongo_uri", defaultMongoURI)
	v.SetDefault("store.mongo_database", defaultMongoDatabase)
	v.SetDefault("store.mongo_collection", defaultMongoColl)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_secret_file", "")

	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.booking_rate_per_minute", defaultBookingRate)
	v.SetDefault("http.booking_burst", defaultBookingBurst)

	v.SetDefault("backup.schedule", "")
	v.SetDefault("backup.dir", defaultBackupDir)

	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
}

// resolveJwtSecret fills cfg.Auth.JwtSecret and returns a description of where it came from.
func resolveJwtSecret(cfg *Config) (string, error) {
	var secretSource string

	// 1. Explicit file path (flag or STUDIOBOOK_AUTH_JWT_SECRET_FILE)
	if cfg.Auth.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.Auth.JwtSecretFile)
		if err == nil {
			secret := strings.TrimSpace(string(secretBytes))
			if secret != "" {
				cfg.Auth.JwtSecret = secret
				secretSource = fmt.Sprintf("File (%s)", cfg.Auth.JwtSecretFile)
			} else {
				logrus.Warnf("Specified JWT secret file '%s' is empty or contains only whitespace. Ignoring.", cfg.Auth.JwtSecretFile)
			}
		} else {
			logrus.Warnf("Failed to read specified JWT secret file '%s': %v. Checking other sources.", cfg.Auth.JwtSecretFile, err)
		}
	}

	// 2. Environment variable / config file value
	if secretSource == "" {
		cfg.Auth.JwtSecret = strings.TrimSpace(cfg.Auth.JwtSecret)
		if cfg.Auth.JwtSecret != "" {
			secretSource = "Environment Variable (STUDIOBOOK_AUTH_JWT_SECRET)"
		}
	}

	// 3. Default key file
	if cfg.Auth.JwtSecret == "" {
		secretBytes, err := os.ReadFile(defaultJwtKeyFile)
		if err == nil {
			cfg.Auth.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.Auth.JwtSecret != "" {
				secretSource = fmt.Sprintf("Default Key File (%s)", defaultJwtKeyFile)
			} else {
				logrus.Warnf("Default JWT key file '%s' is empty. Will attempt generation.", defaultJwtKeyFile)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			logrus.Warnf("Failed to read default JWT key file '%s': %v. Will attempt generation.", defaultJwtKeyFile, err)
		}
	}

	// 4. Generate and save to the default file
	if cfg.Auth.JwtSecret == "" {
		logrus.Info("JWT secret not found via file, environment variable, or default key file. Generating a new secret...")
		newSecret, err := generateRandomKey(32)
		if err != nil {
			return "", fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JwtSecret = newSecret
		secretSource = "Generated (In Memory)"

		if err := os.WriteFile(defaultJwtKeyFile, []byte(newSecret), 0600); err != nil {
			logrus.Warnf("Failed to save generated JWT secret to '%s': %v. The key is used for this run only.", defaultJwtKeyFile, err)
		} else {
			secretSource = fmt.Sprintf("Generated & Saved (%s)", defaultJwtKeyFile)
		}
	}

	return secretSource, nil
}

// ListenAddr joins address and port for http.Server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Address, c.Server.Port)
}

// logConfiguration prints the loaded configuration settings.
func logConfiguration(cfg *Config, secretSource string) {
	fields := logrus.Fields{
		"address":       cfg.Server.Address,
		"port":          cfg.Server.Port,
		"store_backend": cfg.Store.Backend,
		"jwt_source":    secretSource,
		"cors_origins":  strings.Join(cfg.HTTP.CORSOrigins, ","),
		"booking_rate":  cfg.HTTP.BookingRatePerMinute,
	}
	switch cfg.Store.Backend {
	case "file":
		fields["store_file"] = cfg.Store.FilePath
		fields["save_interval"] = cfg.Store.SaveInterval.String()
		fields["backup_enabled"] = cfg.Store.EnableBackup
		fields["watch"] = cfg.Store.WatchFile
	case "redis":
		fields["redis_addr"] = cfg.Store.RedisAddr
	case "sqlite":
		fields["sqlite_path"] = cfg.Store.SQLitePath
	case "mongo":
		fields["mongo_database"] = cfg.Store.MongoDatabase
	}
	if cfg.Backup.Schedule != "" {
		fields["backup_schedule"] = cfg.Backup.Schedule
	}
	logrus.WithFields(fields).Info("Configuration loaded")
}

// generateRandomKey generates a cryptographically secure random key of the specified byte length
// and returns it as a hex-encoded string.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
