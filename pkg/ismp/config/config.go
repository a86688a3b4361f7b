// Package config holds the configuration of the ismp tracker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/celestiaorg/ismp/x/ismp/types"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	// FileName is the name of the configuration file inside the home directory.
	FileName = "ismp.toml"
	// EnvPrefix prefixes environment variables overriding configuration keys, e.g. ISMP_HUB_RPC_ADDRESS.
	EnvPrefix = "ISMP"
)

// Duration is a time.Duration written as a human readable string.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// ChainConfig locates a chain running the ismp module.
type ChainConfig struct {
	// StateMachineID is the id the chain is known as to its counterparties, e.g. TENDERMINT-1.
	StateMachineID string `toml:"state_machine_id" mapstructure:"state_machine_id"`
	// RPCAddress is the cometbft RPC endpoint of a node of the chain.
	RPCAddress string `toml:"rpc_address" mapstructure:"rpc_address"`
	// PageSize is the number of transactions fetched per event search page.
	PageSize int `toml:"page_size" mapstructure:"page_size"`
	// SignerKey is the hex encoded secp256k1 private key signing messages submitted to the chain.
	// A chain without one is read-only.
	SignerKey string `toml:"signer_key,omitempty" mapstructure:"signer_key"`
}

// ID parses the state machine id of the chain.
func (c ChainConfig) ID() (types.StateMachineID, error) {
	return types.ParseStateMachineID(c.StateMachineID)
}

// Key decodes the signer key. It returns nil when none is configured.
func (c ChainConfig) Key() (cryptotypes.PrivKey, error) {
	if c.SignerKey == "" {
		return nil, nil
	}
	bz, err := types.DecodeHex(c.SignerKey)
	if err != nil || len(bz) != secp256k1.PrivKeySize {
		return nil, fmt.Errorf("chain %s: signer_key must be a hex encoded %d byte secp256k1 key", c.StateMachineID, secp256k1.PrivKeySize)
	}
	return &secp256k1.PrivKey{Key: bz}, nil
}

func (c ChainConfig) Validate() error {
	if _, err := c.ID(); err != nil {
		return err
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	if c.RPCAddress == "" {
		return fmt.Errorf("chain %s: rpc_address must be set", c.StateMachineID)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("chain %s: page_size must be positive", c.StateMachineID)
	}
	return nil
}

type MetricsConfig struct {
	Enabled       bool   `toml:"enabled" mapstructure:"enabled"`
	ListenAddress string `toml:"listen_address" mapstructure:"listen_address"`
}

// Config is the configuration of the tracker.
type Config struct {
	// Hub is the chain relaying messages between all other chains.
	Hub ChainConfig `toml:"hub" mapstructure:"hub"`
	// Chains are the sources and destinations of tracked messages.
	Chains []ChainConfig `toml:"chains,omitempty" mapstructure:"chains"`
	// PollInterval is how often pending messages are checked for delivery or timeout.
	PollInterval Duration      `toml:"poll_interval" mapstructure:"poll_interval"`
	LogLevel     string        `toml:"log_level" mapstructure:"log_level"`
	Metrics      MetricsConfig `toml:"metrics" mapstructure:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		Hub: ChainConfig{
			StateMachineID: types.NewStateMachineID(types.StateMachineKindTendermint, 1).String(),
			RPCAddress:     "tcp://localhost:26657",
			PageSize:       50,
		},
		PollInterval: Duration{Duration: 30 * time.Second},
		LogLevel:     zerolog.InfoLevel.String(),
		Metrics: MetricsConfig{
			ListenAddress: ":26660",
		},
	}
}

// Validate checks that every chain is reachable under a distinct state machine id.
func (c Config) Validate() error {
	seen := make(map[types.StateMachineID]bool, len(c.Chains)+1)
	for _, chain := range append([]ChainConfig{c.Hub}, c.Chains...) {
		if err := chain.Validate(); err != nil {
			return err
		}
		id, _ := chain.ID()
		if seen[id] {
			return fmt.Errorf("duplicate chain %s", id)
		}
		seen[id] = true
	}

	if c.PollInterval.Duration <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if level, err := zerolog.ParseLevel(c.LogLevel); err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return errors.New("metrics.listen_address must be set when metrics are enabled")
	}
	return nil
}

// Load reads the configuration file at path over the defaults, applies ISMP_ environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("hub.state_machine_id", cfg.Hub.StateMachineID)
	v.SetDefault("hub.rpc_address", cfg.Hub.RPCAddress)
	v.SetDefault("hub.page_size", cfg.Hub.PageSize)
	v.SetDefault("hub.signer_key", cfg.Hub.SignerKey)
	v.SetDefault("poll_interval", cfg.PollInterval.String())
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen_address", cfg.Metrics.ListenAddress)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Chains added by the file start from the default page size.
	for i := range cfg.Chains {
		if cfg.Chains[i].PageSize == 0 {
			cfg.Chains[i].PageSize = DefaultConfig().Hub.PageSize
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write writes cfg to path, creating its directory.
func Write(path string, cfg Config) error {
	bz, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o644)
}
