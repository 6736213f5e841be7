// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file, GA_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix is prepended to every environment key: db.dsn -> GA_DB_DSN.
const EnvPrefix = "GA"

// Config is the resolved server configuration.
type Config struct {
	HTTP  HTTP  `mapstructure:"http"`
	Ops   Ops   `mapstructure:"ops"`
	DB    DB    `mapstructure:"db"`
	Redis Redis `mapstructure:"redis"`
	JWT   JWT   `mapstructure:"jwt"`
	Hash  Hash  `mapstructure:"hash"`
	TLS   TLS   `mapstructure:"tls"`
	Dev   bool  `mapstructure:"dev"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Ops struct {
	Addr          string        `mapstructure:"addr"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

type DB struct {
	DSN string `mapstructure:"dsn"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWT struct {
	Key        string        `mapstructure:"key"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type Hash struct {
	Cost        int `mapstructure:"cost"`
	Concurrency int `mapstructure:"concurrency"`
}

// TLS is optional; both files must be set to enable it.
type TLS struct {
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

// Enabled reports whether both certificate and key are configured.
func (t TLS) Enabled() bool { return t.Cert != "" && t.Key != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("ops.check_interval", 10*time.Second)
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.key", "")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("hash.cost", 12)
	v.SetDefault("hash.concurrency", 0)
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("dev", false)
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ga-server", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "dotenv file, skipped when missing")
	fs.String("http.addr", ":8080", "HTTP listen address")
	fs.String("ops.addr", ":9090", "gRPC ops (health) listen address")
	fs.String("db.dsn", "", "PostgreSQL DSN")
	fs.String("redis.addr", "", "Redis address")
	fs.String("jwt.key", "", "HS256 signing key (required)")
	fs.Duration("jwt.access_ttl", 15*time.Minute, "access token TTL")
	fs.Duration("jwt.refresh_ttl", 7*24*time.Hour, "refresh token TTL")
	fs.Int("hash.cost", 12, "bcrypt cost for new credentials")
	fs.Int("hash.concurrency", 0, "max concurrent hash operations (0 = GOMAXPROCS)")
	fs.String("tls.cert", "", "TLS certificate (PEM)")
	fs.String("tls.key", "", "TLS private key (PEM)")
	fs.Bool("dev", false, "enable gRPC reflection and gin debug mode")
	return fs
}

// Load resolves configuration. args excludes the program name.
func Load(args []string) (Config, error) {
	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Only flags given explicitly override lower layers.
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "env-file" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return Config{}, bindErr
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errList []error
	if c.JWT.Key == "" {
		errList = append(errList, errors.New("jwt.key is required"))
	}
	if c.DB.DSN == "" {
		errList = append(errList, errors.New("db.dsn is required"))
	}
	if c.Hash.Cost < bcrypt.MinCost || c.Hash.Cost > bcrypt.MaxCost {
		errList = append(errList, fmt.Errorf("hash.cost %d out of range [%d, %d]", c.Hash.Cost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Hash.Concurrency < 0 {
		errList = append(errList, errors.New("hash.concurrency must not be negative"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errList = append(errList, errors.New("jwt ttls must be positive"))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errList = append(errList, errors.New("tls.cert and tls.key must be set together"))
	}
	if c.Ops.CheckInterval <= 0 {
		errList = append(errList, errors.New("ops.check_interval must be positive"))
	}
	return errors.Join(errList...)
}
