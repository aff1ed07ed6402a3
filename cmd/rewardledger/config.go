package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/retry"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultPrimaryCurrency = "USDT"
	defaultMinWithdrawal   = "10"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key shared with the auth service; used to verify caller JWT tokens
	SecretKey string

	// Environment
	Environment string

	// Redis address for account locks
	// If empty in-process locks are used, that is safe only for a single instance
	RedisAddr string

	// Currency used as reward base and tier unlock balance
	PrimaryCurrency string

	// Platform wide minimum withdrawal amount
	MinWithdrawal string

	// Whether automatic tier recomputation may lower the tier
	AllowTierDemotion bool

	// Attempts of a store transaction on optimistic concurrency conflict
	StoreRetryAttempts int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:           defaultLoggingLevel,
		ListenAddr:         defaultListenAddr,
		Environment:        defaultEnvironment,
		PrimaryCurrency:    defaultPrimaryCurrency,
		MinWithdrawal:      defaultMinWithdrawal,
		AllowTierDemotion:  true,
		StoreRetryAttempts: retry.DefaultAttempts,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"REDIS_ADDRESS":        setString(&c.RedisAddr),
		"PRIMARY_CURRENCY":     setString(&c.PrimaryCurrency),
		"MIN_WITHDRAWAL":       setString(&c.MinWithdrawal),
		"ALLOW_TIER_DEMOTION":  setBool(&c.AllowTierDemotion),
		"STORE_RETRY_ATTEMPTS": setInt(&c.StoreRetryAttempts),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("rewardledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to verify access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for account locks, empty to use in-process locks")
	fs.StringVar(&c.PrimaryCurrency, "primary-currency", c.PrimaryCurrency, "Primary currency")
	fs.StringVar(&c.MinWithdrawal, "min-withdrawal", c.MinWithdrawal, "Minimum withdrawal amount")
	fs.BoolVar(&c.AllowTierDemotion, "allow-tier-demotion", c.AllowTierDemotion, "Allow automatic tier demotion")
	fs.IntVar(&c.StoreRetryAttempts, "store-retry-attempts", c.StoreRetryAttempts, "Store transaction attempts on conflict")

	return fs.Parse(args)
}

// Validate checks options that have no usable default
func (c *Config) Validate() error {
	switch {
	case c.DatabaseDSN == "":
		return errors.New("database DSN is required")
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.StoreRetryAttempts < 1:
		return fmt.Errorf("store retry attempts must be positive, got %d", c.StoreRetryAttempts)
	}

	if _, err := c.minWithdrawal(); err != nil {
		return err
	}
	return nil
}

func (c *Config) minWithdrawal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.MinWithdrawal)
	if err != nil {
		return d, fmt.Errorf("invalid minimum withdrawal %q: %w", c.MinWithdrawal, err)
	}
	if !d.IsPositive() {
		return d, fmt.Errorf("minimum withdrawal must be positive, got %s", d)
	}
	return d, nil
}
