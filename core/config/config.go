package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v2"
)

// SubmissionMode selects how signed operations reach the entrypoint.
type SubmissionMode string

const (
	// SubmissionModeDirect sends handleOps from the controller key.
	SubmissionModeDirect = SubmissionMode("direct")
	// SubmissionModeBundler relays through an ERC-4337 bundler RPC.
	SubmissionModeBundler = SubmissionMode("bundler")
)

// TokenInfo describes one supported ERC-20 token.
type TokenInfo struct {
	Address  common.Address
	Decimals int32
}

// Config is the fully parsed runtime configuration. It is constructed once in
// main and passed down; nothing in this package keeps global state.
type Config struct {
	Logger sdklogging.Logger

	EthRpcUrl  string
	BundlerURL string
	ChainID    *big.Int

	EntrypointAddress common.Address
	FactoryAddress    common.Address
	PaymasterAddress  common.Address

	// ControllerPrivateKey signs user operations on behalf of managed wallets
	// and funds direct handleOps submissions.
	ControllerPrivateKey *ecdsa.PrivateKey
	// PaymasterPrivateKey countersigns sponsorship digests. Nil disables
	// sponsorship.
	PaymasterPrivateKey *ecdsa.PrivateKey

	SubmissionMode SubmissionMode

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int

	Tokens map[string]TokenInfo

	DbPath             string
	BackupDir          string
	BackupInterval     time.Duration
	HttpBindAddress    string
	MetricsBindAddress string
	SentryDsn          string
	ExplorerURL        string
}

// ConfigRaw mirrors the yaml config file.
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment"`

	EthRpcUrl  string `yaml:"eth_rpc_url"`
	BundlerURL string `yaml:"bundler_url"`
	ChainID    int64  `yaml:"chain_id"`

	EntrypointAddress string `yaml:"entrypoint_address"`
	FactoryAddress    string `yaml:"factory_address"`
	PaymasterAddress  string `yaml:"paymaster_address"`

	ControllerPrivateKey string `yaml:"controller_private_key"`
	PaymasterPrivateKey  string `yaml:"paymaster_private_key"`

	SubmissionMode string `yaml:"submission_mode"`

	CallGasLimit         int64 `yaml:"call_gas_limit"`
	VerificationGasLimit int64 `yaml:"verification_gas_limit"`
	PreVerificationGas   int64 `yaml:"pre_verification_gas"`

	Tokens map[string]struct {
		Address  string `yaml:"address"`
		Decimals int32  `yaml:"decimals"`
	} `yaml:"tokens"`

	DbPath                string `yaml:"db_path"`
	BackupDir             string `yaml:"backup_dir"`
	BackupIntervalMinutes int64  `yaml:"backup_interval_minutes"`

	HttpBindAddress    string `yaml:"http_bind_address"`
	MetricsBindAddress string `yaml:"metrics_bind_address"`
	SentryDsn          string `yaml:"sentry_dsn"`
	ExplorerURL        string `yaml:"explorer_url"`
}

// Defaults for fields the file may omit.
const (
	defaultCallGasLimit         = 300_000
	defaultVerificationGasLimit = 700_000
	defaultPreVerificationGas   = 300_000
	defaultHttpBindAddress      = ":8080"
	defaultDbPath               = "/tmp/relayerdb"
)

// NewConfig reads the yaml file at configFilePath and resolves it into a
// ready-to-use Config.
func NewConfig(configFilePath string) (*Config, error) {
	body, err := os.ReadFile(configFilePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", configFilePath, err)
	}

	var raw ConfigRaw
	if err := yaml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", configFilePath, err)
	}

	return resolve(&raw)
}

func resolve(raw *ConfigRaw) (*Config, error) {
	logger, err := sdklogging.NewZapLogger(raw.Environment)
	if err != nil {
		return nil, err
	}

	if raw.EthRpcUrl == "" {
		return nil, fmt.Errorf("eth_rpc_url is required")
	}
	if raw.ChainID <= 0 {
		return nil, fmt.Errorf("chain_id is required")
	}

	controllerKey, err := crypto.HexToECDSA(trimHexPrefix(raw.ControllerPrivateKey))
	if err != nil {
		return nil, fmt.Errorf("cannot parse controller private key: %w", err)
	}

	var paymasterKey *ecdsa.PrivateKey
	if raw.PaymasterPrivateKey != "" {
		paymasterKey, err = crypto.HexToECDSA(trimHexPrefix(raw.PaymasterPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("cannot parse paymaster private key: %w", err)
		}
	}

	mode := SubmissionMode(raw.SubmissionMode)
	switch mode {
	case SubmissionModeDirect, SubmissionModeBundler:
	case "":
		mode = SubmissionModeDirect
	default:
		return nil, fmt.Errorf("unknown submission_mode %q", raw.SubmissionMode)
	}
	if mode == SubmissionModeBundler && raw.BundlerURL == "" {
		return nil, fmt.Errorf("bundler_url is required in bundler mode")
	}

	tokens := make(map[string]TokenInfo, len(raw.Tokens))
	for symbol, t := range raw.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s has invalid address %q", symbol, t.Address)
		}
		tokens[symbol] = TokenInfo{
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		}
	}

	c := &Config{
		Logger: logger,

		EthRpcUrl:  raw.EthRpcUrl,
		BundlerURL: raw.BundlerURL,
		ChainID:    big.NewInt(raw.ChainID),

		EntrypointAddress: common.HexToAddress(raw.EntrypointAddress),
		FactoryAddress:    common.HexToAddress(raw.FactoryAddress),
		PaymasterAddress:  common.HexToAddress(raw.PaymasterAddress),

		ControllerPrivateKey: controllerKey,
		PaymasterPrivateKey:  paymasterKey,

		SubmissionMode: mode,

		CallGasLimit:         big.NewInt(orDefault(raw.CallGasLimit, defaultCallGasLimit)),
		VerificationGasLimit: big.NewInt(orDefault(raw.VerificationGasLimit, defaultVerificationGasLimit)),
		PreVerificationGas:   big.NewInt(orDefault(raw.PreVerificationGas, defaultPreVerificationGas)),

		Tokens: tokens,

		DbPath:             stringOrDefault(raw.DbPath, defaultDbPath),
		BackupDir:          raw.BackupDir,
		BackupInterval:     time.Duration(orDefault(raw.BackupIntervalMinutes, 60)) * time.Minute,
		HttpBindAddress:    stringOrDefault(raw.HttpBindAddress, defaultHttpBindAddress),
		MetricsBindAddress: raw.MetricsBindAddress,
		SentryDsn:          raw.SentryDsn,
		ExplorerURL:        raw.ExplorerURL,
	}

	return c, nil
}

// SponsorshipEnabled reports whether a paymaster is fully configured.
func (c *Config) SponsorshipEnabled() bool {
	return c.PaymasterPrivateKey != nil && c.PaymasterAddress != (common.Address{})
}

// ExplorerLink returns a block-explorer URL for a transaction hash, or a bare
// hash when no explorer is configured.
func (c *Config) ExplorerLink(txHash string) string {
	if c.ExplorerURL == "" {
		return txHash
	}
	return fmt.Sprintf("%s/tx/%s", c.ExplorerURL, txHash)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}

func orDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

func stringOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
