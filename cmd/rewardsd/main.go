// rewardsd 奖励发放 HTTP 服务（POST /stellar-rewards）
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellar/go/clients/horizonclient"

	"github.com/quizchain/client-sdk-go/config"
	"github.com/quizchain/client-sdk-go/logging"
	"github.com/quizchain/client-sdk-go/services/payout"
	"github.com/quizchain/client-sdk-go/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json"})
	logger.Info("starting rewardsd", "version", version, "commit", commit, "build_time", buildTime,
		"network", cfg.Network, "horizon", cfg.HorizonURL)

	shutdownTracing, err := telemetry.InitTracer(context.Background(), "quizchain-rewardsd", cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	svc, err := payout.NewService(&horizonclient.Client{HorizonURL: cfg.HorizonURL}, payout.Config{
		IssuerSecret:      cfg.SecretKey,
		NetworkPassphrase: cfg.NetworkPassphrase,
		BaseFee:           cfg.BaseFee,
		Logger:            logger,
	})
	if err != nil {
		slog.Error("payout service error", "err", err)
		os.Exit(1)
	}
	logger.Info("issuer loaded", "address", svc.IssuerAddress())

	handler, err := payout.NewHandler(svc)
	if err != nil {
		slog.Error("handler error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("http server listening", "addr", cfg.HTTPAddr)
	if err := payout.ListenAndServe(ctx, cfg.HTTPAddr, payout.Mux(handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}
	logger.Info("rewardsd stopped")
}
