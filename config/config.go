package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"girochain/crypto"
	"girochain/native/token"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`
	// OwnerAddress overrides the keystore-derived owner. Used when the node
	// serves a ledger whose owner key is custodied elsewhere.
	OwnerAddress string `toml:"OwnerAddress,omitempty"`
	// InitialSupplyGiro is the genesis mint in whole GIRO, credited to the
	// owner on first boot. Ignored once the ledger is initialized.
	InitialSupplyGiro uint64 `toml:"InitialSupplyGiro"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "giro-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./giro-data"
	}
	if cfg.InitialSupplyGiro == 0 {
		cfg.InitialSupplyGiro = 100_000
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the node could not boot with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if trimmed := strings.TrimSpace(cfg.OwnerAddress); trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return fmt.Errorf("invalid OwnerAddress: %w", err)
		}
	} else if strings.TrimSpace(cfg.OwnerKeystorePath) == "" {
		return fmt.Errorf("OwnerKeystorePath or OwnerAddress is required")
	}
	if cfg.InitialSupplyGiro > uint64(1)<<62 || token.Units(int64(cfg.InitialSupplyGiro)).Cmp(token.MaxSupply()) > 0 {
		return fmt.Errorf("InitialSupplyGiro %d exceeds the supply cap", cfg.InitialSupplyGiro)
	}
	return nil
}

// Owner resolves the token owner address, preferring the explicit override
// and falling back to the keystore key.
func (cfg *Config) Owner(passphrase string) ([20]byte, error) {
	var owner [20]byte
	if trimmed := strings.TrimSpace(cfg.OwnerAddress); trimmed != "" {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return owner, fmt.Errorf("invalid OwnerAddress: %w", err)
		}
		copy(owner[:], addr.Bytes())
		return owner, nil
	}
	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, passphrase)
	if err != nil {
		return owner, fmt.Errorf("load owner keystore: %w", err)
	}
	copy(owner[:], key.PubKey().Address().Bytes())
	return owner, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	if strings.TrimSpace(cfg.OwnerAddress) != "" {
		return nil
	}
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8080",
		DataDir:           "./giro-data",
		NetworkName:       "giro-local",
		OwnerKeystorePath: keystorePath,
		InitialSupplyGiro: 100_000,
	}

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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
