// Command lifecycle runs one pre-approved payment end to end against LINE Pay:
// it reserves a zero-amount order, waits for the customer to authorize it,
// charges the configured amount against the reg key and then expires the key.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/linepay-preapproval/internal/adapter/linepay"
	"github.com/yourorg/linepay-preapproval/internal/config"
	"github.com/yourorg/linepay-preapproval/internal/gateway"
	"github.com/yourorg/linepay-preapproval/internal/logging"
	"github.com/yourorg/linepay-preapproval/internal/orchestrator"
	"github.com/yourorg/linepay-preapproval/internal/policy"
	"github.com/yourorg/linepay-preapproval/internal/reservation"
	"github.com/yourorg/linepay-preapproval/internal/telemetry"
)

const serviceName = "linepay-preapproval"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	err = run(ctx, cfg, logger)
	if err != nil {
		logger.Error("lifecycle failed", zap.String("kind", orchestrator.Kind(err)), zap.Error(err))
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	chargePolicy, err := policy.FromExpression(cfg.ChargePolicy)
	if err != nil {
		return fmt.Errorf("charge policy: %w", err)
	}
	shutdownTracing, err := telemetry.Setup(ctx, cfg.TraceExporter, serviceName, nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	provider, err := linepay.New(linepay.Config{
		ChannelID:     cfg.ChannelID,
		ChannelSecret: cfg.ChannelSecret,
		Sandbox:       cfg.Sandbox,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
	})
	if err != nil {
		return err
	}
	client := gateway.NewClient(provider,
		gateway.WithLogger(logger),
		gateway.WithReservationBuilder(reservation.NewBuilder(cfg.Lifecycle.ConfirmURL, cfg.Lifecycle.CancelURL)),
	)

	driver, err := orchestrator.NewLifecycleDriver(client, orchestrator.Config{
		PollInterval:    cfg.Lifecycle.PollInterval,
		MaxPollAttempts: cfg.Lifecycle.MaxPollAttempts,
		PollTimeout:     cfg.Lifecycle.PollTimeout,
	},
		orchestrator.WithLogger(logger),
		orchestrator.WithChargePolicy(chargePolicy),
		orchestrator.WithContractDir(cfg.ContractDir),
	)
	if err != nil {
		return err
	}

	order := reservation.NewOrder(uuid.NewString(), cfg.Lifecycle.ProductID, cfg.Lifecycle.ProductName, "", cfg.Lifecycle.ImageURL)
	logger.Info("starting lifecycle",
		zap.String("order_id", order.ID),
		zap.String("endpoint", provider.BaseURL()),
		zap.Bool("sandbox", cfg.Sandbox),
	)

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           setupRouter(provider),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-serverCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()
		out, err := driver.Run(gctx, order, cfg.Lifecycle.ChargeAmount)
		logger.Info("lifecycle finished",
			zap.String("order_id", out.OrderID),
			zap.String("transaction_id", out.TransactionID),
			zap.Int("poll_attempts", out.PollAttempts),
			zap.Bool("charged", out.Charged),
			zap.Bool("reg_key_expired", out.RegKeyExpired),
			zap.String("outcome", orchestrator.Kind(err)),
		)
		return err
	})

	return g.Wait()
}
