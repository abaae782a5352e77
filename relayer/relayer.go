// Package relayer wires configuration, storage, chain clients and the
// transfer engine into a runnable service with an HTTP surface.
package relayer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zephyrpay/relayer/core/backup"
	"github.com/zephyrpay/relayer/core/config"
	"github.com/zephyrpay/relayer/core/migrator"
	"github.com/zephyrpay/relayer/core/transferengine"
	"github.com/zephyrpay/relayer/metrics"
	"github.com/zephyrpay/relayer/migrations"
	"github.com/zephyrpay/relayer/pkg/erc4337/bundler"
	"github.com/zephyrpay/relayer/pkg/erc4337/preset"
	"github.com/zephyrpay/relayer/storage"
)

type RelayerStatus string

const (
	initStatus     RelayerStatus = "init"
	runningStatus  RelayerStatus = "running"
	shutdownStatus RelayerStatus = "shutdown"
)

type Relayer struct {
	config *config.Config
	logger logging.Logger

	db            storage.Storage
	ethRpcClient  *ethclient.Client
	bundlerClient *bundler.BundlerClient

	engine   *transferengine.Engine
	backup   *backup.Service
	registry *prometheus.Registry

	status RelayerStatus
}

// RunWithConfig is the entry used by the CLI: parse config, build the
// service, run until a signal arrives.
func RunWithConfig(configPath string) error {
	c, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	r, err := NewRelayer(c)
	if err != nil {
		return fmt.Errorf("cannot initialize relayer from config: %w", err)
	}

	return r.Start(context.Background())
}

func NewRelayer(c *config.Config) (*Relayer, error) {
	logger := c.Logger

	ethRpcClient, err := ethclient.Dial(c.EthRpcUrl)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to eth rpc %s: %w", c.EthRpcUrl, err)
	}

	var bundlerClient *bundler.BundlerClient
	if c.BundlerURL != "" {
		bundlerClient, err = bundler.NewBundlerClient(c.BundlerURL)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to bundler %s: %w", c.BundlerURL, err)
		}
	}

	db, err := storage.NewWithPath(c.DbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database at %s: %w", c.DbPath, err)
	}

	var backupService *backup.Service
	if c.BackupDir != "" {
		backupService = backup.NewService(logger, db, c.BackupDir)
	}

	if err := migrator.NewMigrator(logger, db, backupService, migrations.Migrations).Run(); err != nil {
		return nil, fmt.Errorf("storage migration failed: %w", err)
	}

	builder := preset.NewBuilder(preset.BuilderConfig{
		Client:               ethRpcClient,
		Entrypoint:           c.EntrypointAddress,
		Factory:              c.FactoryAddress,
		ChainID:              c.ChainID,
		ControllerKey:        c.ControllerPrivateKey,
		CallGasLimit:         c.CallGasLimit,
		VerificationGasLimit: c.VerificationGasLimit,
		PreVerificationGas:   c.PreVerificationGas,
		Logger:               logger,
	})

	sender := preset.NewSubmitter(preset.SubmitterConfig{
		Mode:          preset.SubmissionMode(c.SubmissionMode),
		Entrypoint:    c.EntrypointAddress,
		ChainID:       c.ChainID,
		ControllerKey: c.ControllerPrivateKey,
		TxClient:      ethRpcClient,
		BundlerClient: bundlerClient,
		Logger:        logger,
	})

	registry := prometheus.NewRegistry()

	engine := transferengine.New(transferengine.EngineConfig{
		DB:            db,
		Chain:         ethRpcClient,
		Builder:       builder,
		Sender:        sender,
		BundlerClient: bundlerClient,
		Config:        c,
		Metrics:       metrics.NewRelayerMetrics(registry),
		Logger:        logger,
	})

	return &Relayer{
		config:        c,
		logger:        logger,
		db:            db,
		ethRpcClient:  ethRpcClient,
		bundlerClient: bundlerClient,
		engine:        engine,
		backup:        backupService,
		registry:      registry,
		status:        initStatus,
	}, nil
}

// Start runs the HTTP server and blocks until SIGINT or SIGTERM.
func (r *Relayer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.status = runningStatus
	r.startHttpServer(ctx)

	if r.backup != nil {
		if err := r.backup.StartPeriodicBackup(r.config.BackupInterval); err != nil {
			r.logger.Errorf("cannot start backup service: %v", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		r.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	return r.Stop()
}

func (r *Relayer) Stop() error {
	r.status = shutdownStatus

	if r.backup != nil {
		r.backup.StopPeriodicBackup()
	}
	r.engine.Close()
	if r.bundlerClient != nil {
		r.bundlerClient.Close()
	}
	r.ethRpcClient.Close()

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("error closing database: %w", err)
	}
	return nil
}
