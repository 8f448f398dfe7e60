package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"girochain/cmd/internal/passphrase"
	"girochain/config"
	"girochain/core"
	"girochain/native/token"
	"girochain/observability/logging"
	"girochain/rpc"
	"girochain/storage"
)

const ownerPassEnv = "GIRO_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GIRO_ENV"))
	logger := logging.Setup("girod", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	passSource := passphrase.NewSource(ownerPassEnv)
	pass := ""
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		resolved, err := passSource.Get()
		if err != nil {
			logger.Error("Failed to resolve keystore passphrase", slog.Any("error", err))
			os.Exit(1)
		}
		pass = resolved
	}

	owner, err := cfg.Owner(pass)
	if err != nil {
		logger.Error("Failed to resolve token owner", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	initialSupply := token.Units(int64(cfg.InitialSupplyGiro))
	node, err := core.NewNode(db, owner, initialSupply)
	if err != nil {
		logger.Error("Failed to initialize node", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("dataDir", cfg.DataDir),
	)

	server := rpc.NewServer(node)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
