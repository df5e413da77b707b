package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARTCADE_"

// RegistryGenesis holds the settings of the registry deployed at genesis.
// Amounts are decimal ether strings.
type RegistryGenesis struct {
	Owner             string `json:"owner"` // defaults to the authority
	PricePerGame      string `json:"price_per_game"`
	MaxTicketsPerGame uint64 `json:"max_tickets_per_game"`
	ProtocolRecipient string `json:"protocol_recipient"`
	ProtocolFeeBps    uint64 `json:"protocol_fee_bps"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID  uint64            `json:"chain_id" env:"CHAIN_ID"`
	Alloc    map[string]string `json:"alloc"` // address hex → ether amount
	Registry RegistryGenesis   `json:"registry"`
}

// Config holds all node configuration.
type Config struct {
	NodeID          string        `json:"node_id" env:"NODE_ID"`
	DataDir         string        `json:"data_dir" env:"DATA_DIR"`
	RPCPort         int           `json:"rpc_port" env:"RPC_PORT"`
	RPCAuthToken    string        `json:"rpc_auth_token" env:"RPC_AUTH_TOKEN"`
	MaxBlockTxs     int           `json:"max_block_txs" env:"MAX_BLOCK_TXS"` // 0 → 500
	BlockIntervalMS int           `json:"block_interval_ms" env:"BLOCK_INTERVAL_MS"`
	Authority       string        `json:"authority" env:"AUTHORITY"` // sequencer address
	LogLevel        string        `json:"log_level" env:"LOG_LEVEL"`
	LogFormat       string        `json:"log_format" env:"LOG_FORMAT"` // "text" or "json"
	Genesis         GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:          "node0",
		DataDir:         "./data",
		RPCPort:         8545,
		MaxBlockTxs:     500,
		BlockIntervalMS: 2000,
		LogLevel:        "info",
		LogFormat:       "text",
		Genesis: GenesisConfig{
			ChainID: 31337,
			Alloc:   map[string]string{},
			Registry: RegistryGenesis{
				PricePerGame:      "0.001",
				MaxTicketsPerGame: 100,
				ProtocolFeeBps:    1000,
			},
		},
	}
}

// Load reads a JSON config file from path and applies ARTCADE_* environment
// overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave
// the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == 0 {
		return errors.New("genesis.chain_id must be set")
	}
	if !common.IsHexAddress(c.Authority) {
		return fmt.Errorf("invalid authority address %q", c.Authority)
	}
	if o := c.Genesis.Registry.Owner; o != "" && !common.IsHexAddress(o) {
		return fmt.Errorf("invalid registry owner %q", o)
	}
	if p := c.Genesis.Registry.ProtocolRecipient; p != "" && !common.IsHexAddress(p) {
		return fmt.Errorf("invalid protocol recipient %q", p)
	}
	if c.Genesis.Registry.ProtocolFeeBps > 10_000 {
		return fmt.Errorf("protocol_fee_bps %d exceeds 10000", c.Genesis.Registry.ProtocolFeeBps)
	}
	for addr := range c.Genesis.Alloc {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid alloc address %q", addr)
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
