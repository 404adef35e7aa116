package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingAccessSecret  = errors.New("ACCESS_TOKEN_SECRET is required")
	ErrMissingRefreshSecret = errors.New("REFRESH_TOKEN_SECRET is required")
	ErrSameTokenSecrets     = errors.New("access and refresh token secrets must differ")
	ErrUnknownDriver        = errors.New("DATABASE_DRIVER must be postgres or sqlite")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver           string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	SQLitePath       string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" port=" + c.PostgresPort + " sslmode=disable TimeZone=UTC"
}

type ServerConfig struct {
	Port           string
	Environment    string
	AllowedOrigins []string
}

func (c *ServerConfig) Development() bool {
	return c.Environment == "development"
}

type TokenConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	SweepInterval      time.Duration
}

type ExecConfig struct {
	CommandTimeout time.Duration
	MaxOutputBytes int
}

type RateLimitConfig struct {
	// RequestsPerSecond applies per client IP on the /auth routes. Zero disables limiting.
	RequestsPerSecond float64
}

type AdminConfig struct {
	Username string
	Password string
}

type Config struct {
	Database  *DatabaseConfig
	Server    *ServerConfig
	Token     *TokenConfig
	Exec      *ExecConfig
	RateLimit *RateLimitConfig
	Admin     *AdminConfig
}

// LoadConfig reads dotenvPath if it exists and builds the configuration from the
// process environment. A missing dotenv file is not an error.
func LoadConfig(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
	}

	dbCfg := &DatabaseConfig{
		Driver:           getenv("DATABASE_DRIVER", DriverPostgres),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getenv("POSTGRES_PORT", "5432"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		SQLitePath:       getenv("SQLITE_PATH", "zerodrop.db"),
	}
	serverCfg := &ServerConfig{
		Port:           getenv("SERVER_PORT", "3007"),
		Environment:    getenv("APP_ENV", "production"),
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
	tokenCfg := &TokenConfig{
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
	}
	execCfg := &ExecConfig{}
	rateCfg := &RateLimitConfig{}
	adminCfg := &AdminConfig{
		Username: os.Getenv("ADMIN_USERNAME"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	if dbCfg.MaxOpenConns, err = getenvInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if dbCfg.MaxIdleConns, err = getenvInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if dbCfg.ConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}
	if tokenCfg.AccessTokenTTL, err = getenvDuration("ACCESS_TOKEN_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if tokenCfg.RefreshTokenTTL, err = getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if tokenCfg.SweepInterval, err = getenvDuration("REFRESH_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if execCfg.CommandTimeout, err = getenvDuration("COMMAND_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if execCfg.MaxOutputBytes, err = getenvInt("COMMAND_MAX_OUTPUT_BYTES", 1<<20); err != nil {
		return nil, err
	}
	if rateCfg.RequestsPerSecond, err = getenvFloat("AUTH_RATE_LIMIT", 5); err != nil {
		return nil, err
	}

	cfg := &Config{dbCfg, serverCfg, tokenCfg, execCfg, rateCfg, adminCfg}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token.AccessTokenSecret == "" {
		return ErrMissingAccessSecret
	}
	if c.Token.RefreshTokenSecret == "" {
		return ErrMissingRefreshSecret
	}
	if c.Token.AccessTokenSecret == c.Token.RefreshTokenSecret {
		return ErrSameTokenSecrets
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return ErrUnknownDriver
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return i, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

// getenvDuration accepts Go duration strings such as "5m" or "168h".
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
