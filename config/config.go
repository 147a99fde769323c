// Package config loads the settings shared by the verinews binaries.
//
// Files are JSON or YAML, chosen by extension. Environment variables
// override the file so deployments can inject endpoints without editing it.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"verinews.io/verify/ledger"
	"verinews.io/verify/storage/casconfig"
)

// Environment overrides.
const (
	EnvConfig   = "VERINEWS_CONFIG"
	EnvRPCURL   = "VERINEWS_RPC_URL"
	EnvContract = "VERINEWS_CONTRACT"
	EnvKeysDir  = "VERINEWS_KEYS_DIR"
	EnvChainID  = "VERINEWS_CHAIN_ID"
)

type Config struct {
	RPCURL string `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`
	// ChainID of zero asks the node.
	ChainID         uint64 `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
	ContractAddress string `json:"contract_address,omitempty" yaml:"contract_address,omitempty"`

	ReceiptPollInterval Duration `json:"receipt_poll_interval,omitempty" yaml:"receipt_poll_interval,omitempty"`
	// SubmitTimeout bounds one submission including the wait for inclusion;
	// zero waits until the caller cancels.
	SubmitTimeout Duration `json:"submit_timeout,omitempty" yaml:"submit_timeout,omitempty"`
	// GasLimit of zero estimates per transaction.
	GasLimit uint64 `json:"gas_limit,omitempty" yaml:"gas_limit,omitempty"`

	KeysDir  string `json:"keys_dir,omitempty" yaml:"keys_dir,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	Mirror Mirror `json:"mirror,omitempty" yaml:"mirror,omitempty"`
}

// Mirror configures the local record mirror. An empty IndexPath disables it.
type Mirror struct {
	IndexPath string           `json:"index_path,omitempty" yaml:"index_path,omitempty"`
	CAS       casconfig.Config `json:"cas,omitempty" yaml:"cas,omitempty"`
}

func (m Mirror) Enabled() bool { return m.IndexPath != "" }

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ReceiptPollInterval: Duration(ledger.DefaultPollInterval),
		LogLevel:            "warn",
	}
}

// Load reads path (or $VERINEWS_CONFIG when path is empty) over the defaults,
// applies environment overrides and validates the result. With neither a
// path nor the variable set, only defaults and environment apply.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := decode(path, b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvRPCURL); v != "" {
		c.RPCURL = v
	}
	if v := getenv(EnvContract); v != "" {
		c.ContractAddress = v
	}
	if v := getenv(EnvKeysDir); v != "" {
		c.KeysDir = v
	}
	if v := getenv(EnvChainID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvChainID, err)
		}
		c.ChainID = id
	}
	return nil
}

// Validate checks values that are set. Use RequireLedger before talking to
// the ledger.
func (c Config) Validate() error {
	if c.RPCURL != "" {
		u, err := url.Parse(c.RPCURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("config: rpc_url %q is not a URL", c.RPCURL)
		}
	}
	if c.ContractAddress != "" && !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("config: contract_address %q is not an address", c.ContractAddress)
	}
	if c.ReceiptPollInterval < 0 || c.SubmitTimeout < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: log_level: %w", err)
		}
	}
	if c.Mirror.Enabled() && !c.Mirror.CAS.IsZero() {
		if err := c.Mirror.CAS.Validate(); err != nil {
			return fmt.Errorf("config: mirror: %w", err)
		}
	}
	return nil
}

// RequireLedger reports whether the ledger endpoint and contract are set.
func (c Config) RequireLedger() error {
	var missing []string
	if c.RPCURL == "" {
		missing = append(missing, "rpc_url ("+EnvRPCURL+")")
	}
	if c.ContractAddress == "" {
		missing = append(missing, "contract_address ("+EnvContract+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) Contract() common.Address { return common.HexToAddress(c.ContractAddress) }

// LedgerOptions maps the configuration onto ledger.Options.
func (c Config) LedgerOptions() ledger.Options {
	opts := ledger.Options{
		GasLimit:     c.GasLimit,
		PollInterval: time.Duration(c.ReceiptPollInterval),
	}
	if c.ChainID != 0 {
		opts.ChainID = new(big.Int).SetUint64(c.ChainID)
	}
	return opts
}

// Duration is a time.Duration written as "2s", "500ms" in files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
