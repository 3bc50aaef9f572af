// Package config loads service configuration from an optional YAML file
// overlaid by CERTLEDGER_* environment variables.
package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix for all settings.
const EnvPrefix = "CERTLEDGER"

// Ledger drivers.
const (
	DriverBigchain = "bigchain"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config captures process level configuration.
// Environment names are CERTLEDGER_ADDR, CERTLEDGER_LEDGER_DRIVER,
// CERTLEDGER_ISSUER_SEED, CERTLEDGER_SCAN_CONCURRENCY and so on.
type Config struct {
	Addr        string `yaml:"addr"`
	Environment string `yaml:"environment" envconfig:"ENV"`
	LogLevel    string `yaml:"logLevel"    split_words:"true"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed when
	// recording the client address of operator actions.
	TrustedProxies []string `yaml:"trustedProxies" split_words:"true"`

	Ledger   Ledger   `yaml:"ledger"   envconfig:"LEDGER"`
	Issuer   Issuer   `yaml:"issuer"   envconfig:"ISSUER"`
	// Issuers are further issuing identities served under /issuers/{id}.
	// They are only read from the YAML file.
	Issuers  []Issuer `yaml:"issuers"  ignored:"true"`
	Operator Operator `yaml:"operator" envconfig:"OPERATOR"`
	Scanner  Scanner  `yaml:"scanner"  envconfig:"SCAN"`

	Lifecycle `yaml:"lifecycle"`
}

// Ledger configures the substrate driver and reconciliation of timed-out commits.
type Ledger struct {
	Driver            string        `yaml:"driver"`
	URL               string        `yaml:"url"`
	TendermintURL     string        `yaml:"tendermintUrl"     split_words:"true"`
	DataDir           string        `yaml:"dataDir"           split_words:"true"`
	Timeout           time.Duration `yaml:"timeout"`
	ReconcileAttempts int           `yaml:"reconcileAttempts" split_words:"true"`
	ReconcileInterval time.Duration `yaml:"reconcileInterval" split_words:"true"`
}

// DefaultIssuerID names the issuer configured under Issuer.
const DefaultIssuerID = "default"

// Issuer carries base64 key material for one issuing party.
// Empty keys mean an ephemeral issuer is generated at startup.
type Issuer struct {
	ID        string `yaml:"id"`
	Seed      string `yaml:"seed"`
	CipherKey string `yaml:"cipherKey" split_words:"true"`
}

// Operator configures bearer tokens guarding issuer-side endpoints.
type Operator struct {
	SigningKey string        `yaml:"signingKey" split_words:"true"`
	TokenTTL   time.Duration `yaml:"tokenTtl"   envconfig:"TOKEN_TTL"`
}

// Scanner configures the bulk export path.
type Scanner struct {
	Concurrency int `yaml:"concurrency"`
}

// Lifecycle holds certificate issuing defaults.
type Lifecycle struct {
	MinIdentifierLength int `yaml:"minIdentifierLength" split_words:"true"`
	DefaultValidMonths  int `yaml:"defaultValidMonths"  split_words:"true"`
}

type ctxKey struct{}

// WithContext stores cfg on ctx for subcommands.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext returns the configuration stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(ctxKey{}).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Addr:        ":8080",
		Environment: "development",
		LogLevel:    "info",
		Ledger: Ledger{
			Driver:            DriverBigchain,
			URL:               "http://localhost:9984",
			TendermintURL:     "http://localhost:26657",
			DataDir:           "./data/ledger",
			Timeout:           10 * time.Second,
			ReconcileAttempts: 5,
			ReconcileInterval: 500 * time.Millisecond,
		},
		Issuer:   Issuer{ID: DefaultIssuerID},
		Operator: Operator{
			SigningKey: "dev-secret-key-change-in-production",
			TokenTTL:   time.Hour,
		},
		Scanner:   Scanner{Concurrency: 4},
		Lifecycle: Lifecycle{MinIdentifierLength: 5, DefaultValidMonths: 12},
	}
}

// Load reads the YAML file at path (if non-empty), then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Driver {
	case DriverBigchain, DriverBadger, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver))
	}
	if c.Ledger.Timeout <= 0 {
		errs = append(errs, errors.New("ledger timeout must be positive"))
	}
	if c.Ledger.ReconcileAttempts < 0 {
		errs = append(errs, errors.New("reconcile attempts must not be negative"))
	}
	if c.Scanner.Concurrency < 1 {
		errs = append(errs, errors.New("scan concurrency must be at least 1"))
	}
	if c.Lifecycle.MinIdentifierLength < 1 {
		errs = append(errs, errors.New("min identifier length must be at least 1"))
	}
	if c.Lifecycle.DefaultValidMonths < 1 {
		errs = append(errs, errors.New("default valid months must be at least 1"))
	}
	if c.Operator.SigningKey == "" {
		errs = append(errs, errors.New("operator signing key is required"))
	}
	seen := map[string]bool{}
	for _, iss := range c.AllIssuers() {
		switch {
		case iss.ID == "":
			errs = append(errs, errors.New("issuer id is required"))
		case seen[iss.ID]:
			errs = append(errs, fmt.Errorf("duplicate issuer id %q", iss.ID))
		}
		seen[iss.ID] = true
		if _, err := iss.DecodeSeed(); err != nil {
			errs = append(errs, fmt.Errorf("issuer %q: %w", iss.ID, err))
		}
		if _, err := iss.DecodeCipherKey(); err != nil {
			errs = append(errs, fmt.Errorf("issuer %q: %w", iss.ID, err))
		}
	}
	return errors.Join(errs...)
}

// AllIssuers returns the default issuer followed by the additional ones.
func (c *Config) AllIssuers() []Issuer {
	return append([]Issuer{c.Issuer}, c.Issuers...)
}

// DecodeSeed returns the ed25519 seed bytes, or nil when unset.
func (i Issuer) DecodeSeed() ([]byte, error) {
	return decodeKey("issuer seed", i.Seed, 32)
}

// DecodeCipherKey returns the symmetric identifier key, or nil when unset.
func (i Issuer) DecodeCipherKey() ([]byte, error) {
	return decodeKey("issuer cipher key", i.CipherKey, 32)
}

func decodeKey(name, value string, size int) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", name, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", name, size, len(raw))
	}
	return raw, nil
}
