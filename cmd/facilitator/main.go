// Command facilitator runs the omni402 payment facilitator service: the
// verify/settle HTTP surface plus the hub-chain settlement listener.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	omnitab "github.com/omni402/omnitab"
	"github.com/omni402/omnitab/config"
	"github.com/omni402/omnitab/listener"
	"github.com/omni402/omnitab/logger"
	"github.com/omni402/omnitab/metrics"
	"github.com/omni402/omnitab/server"
	"github.com/omni402/omnitab/store"
)

func main() {
	cfg := config.Load()
	log := logger.NewZapLogger(cfg.LogLevel)
	recorder := metrics.NewPrometheusRecorder()

	st, err := buildStore(cfg)
	if err != nil {
		log.Error("failed to initialize store", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	registry := cfg.SourceChains()
	facilitator := omnitab.New(registry, st,
		omnitab.WithLogger(log),
		omnitab.WithMetrics(recorder),
		omnitab.WithTimeout(cfg.RPCTimeout),
		omnitab.WithHubNetwork(cfg.HubNetwork),
	)
	defer facilitator.Close()

	for _, chain := range registry.All() {
		if err := facilitator.AddSourceChain(chain); err != nil {
			log.Warn("source chain unavailable", map[string]any{
				"chainId": chain.ChainID,
				"name":    chain.Name,
				"error":   err.Error(),
			})
		}
	}

	listenerCtx, stopListener := context.WithCancel(context.Background())
	listenerDone := make(chan struct{})
	if cfg.HubContract == "" {
		log.Warn("HUB_ADDRESS not set, settlement listener disabled", nil)
		close(listenerDone)
		stopListener()
	} else {
		hubClient, err := ethclient.Dial(cfg.HubRPCURL)
		if err != nil {
			log.Error("failed to connect to hub RPC", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer hubClient.Close()

		hub := listener.NewHubListener(
			hubClient, st,
			common.HexToAddress(cfg.HubContract),
			cfg.PollInterval, cfg.Lookback,
			log, recorder,
		)
		go func() {
			defer close(listenerDone)
			hub.Run(listenerCtx)
		}()
	}

	handler := server.NewHandler(
		facilitator.Verifier(),
		facilitator.Settler(),
		st,
		registry,
		cfg.HubNetwork,
		log,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("facilitator listening", map[string]any{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down", nil)

	// Let the in-flight poll finish before exit.
	stopListener()
	<-listenerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	log.Info("shutdown complete", nil)
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend != "dynamo" {
		return store.NewMemoryStore(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SettlementsTable), nil
}
