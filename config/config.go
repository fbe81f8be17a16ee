package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"factorvault/core/types"
	"factorvault/native/factoring"
)

// Config is the daemon configuration, persisted as TOML. Addresses are
// hex-encoded; pool economics live under [Params] and mirror the engine's
// parameter set.
type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	DataDir              string `toml:"DataDir"`
	AdapterURL           string `toml:"AdapterURL"`
	SweepIntervalSeconds int64  `toml:"SweepIntervalSeconds"`
	RateLimitPerSecond   int    `toml:"RateLimitPerSecond"`

	PoolAddress        string `toml:"PoolAddress"`
	OwnerAddress       string `toml:"OwnerAddress"`
	UnderwriterAddress string `toml:"UnderwriterAddress"`
	ProtocolTreasury   string `toml:"ProtocolTreasury"`

	// Empty allowlists permit everyone for that participant class.
	DepositAllowlist []string `toml:"DepositAllowlist"`
	RedeemAllowlist  []string `toml:"RedeemAllowlist"`
	FactorAllowlist  []string `toml:"FactorAllowlist"`

	Pauses Pauses           `toml:"Pauses"`
	Params factoring.Params `toml:"Params"`

	OTLPEndpoint string `toml:"OTLPEndpoint"`
}

// Pauses holds the operator kill switches.
type Pauses struct {
	Factoring bool `toml:"Factoring"`
}

// Load reads the configuration at path, creating and persisting a default
// file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8546"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./factorvault-data"
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = 60
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	zero := factoring.Params{}
	if cfg.Params == zero {
		cfg.Params = factoring.DefaultParams()
	}
	if cfg.DepositAllowlist == nil {
		cfg.DepositAllowlist = []string{}
	}
	if cfg.RedeemAllowlist == nil {
		cfg.RedeemAllowlist = []string{}
	}
	if cfg.FactorAllowlist == nil {
		cfg.FactorAllowlist = []string{}
	}
}

// createDefault writes a default configuration file and returns it. The pool
// and owner addresses are intentionally left empty; Validate forces the
// operator to fill them in before the daemon starts.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// PoolAddr parses the configured pool address.
func (c *Config) PoolAddr() (types.Address, error) {
	return parseAddr("PoolAddress", c.PoolAddress)
}

// OwnerAddr parses the configured owner address.
func (c *Config) OwnerAddr() (types.Address, error) {
	return parseAddr("OwnerAddress", c.OwnerAddress)
}

// UnderwriterAddr parses the configured underwriter address; a zero address
// means no underwriter is assigned yet.
func (c *Config) UnderwriterAddr() (types.Address, error) {
	if strings.TrimSpace(c.UnderwriterAddress) == "" {
		return types.ZeroAddress, nil
	}
	return parseAddr("UnderwriterAddress", c.UnderwriterAddress)
}

// TreasuryAddr parses the configured protocol treasury address; a zero
// address disables protocol fee withdrawal until one is set.
func (c *Config) TreasuryAddr() (types.Address, error) {
	if strings.TrimSpace(c.ProtocolTreasury) == "" {
		return types.ZeroAddress, nil
	}
	return parseAddr("ProtocolTreasury", c.ProtocolTreasury)
}

// Allowlist parses a list of hex addresses.
func Allowlist(name string, raw []string) ([]types.Address, error) {
	out := make([]types.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := parseAddr(name, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseAddr(field, raw string) (types.Address, error) {
	addr, err := types.ParseAddress(raw)
	if err != nil {
		return types.ZeroAddress, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// Validate checks the configuration is complete enough to start the daemon.
func Validate(cfg *Config) error {
	if _, err := cfg.PoolAddr(); err != nil {
		return err
	}
	owner, err := cfg.OwnerAddr()
	if err != nil {
		return err
	}
	if owner.IsZero() {
		return fmt.Errorf("OwnerAddress must not be the zero address")
	}
	if _, err := cfg.UnderwriterAddr(); err != nil {
		return err
	}
	if _, err := cfg.TreasuryAddr(); err != nil {
		return err
	}
	for name, raw := range map[string][]string{
		"DepositAllowlist": cfg.DepositAllowlist,
		"RedeemAllowlist":  cfg.RedeemAllowlist,
		"FactorAllowlist":  cfg.FactorAllowlist,
	} {
		if _, err := Allowlist(name, raw); err != nil {
			return err
		}
	}
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	return nil
}
