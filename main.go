package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/api"
	"github.com/Martian-dev/ai-brain-ledger/internal/app"
	"github.com/Martian-dev/ai-brain-ledger/internal/auth"
	"github.com/Martian-dev/ai-brain-ledger/internal/collector"
	"github.com/Martian-dev/ai-brain-ledger/internal/config"
	"github.com/Martian-dev/ai-brain-ledger/internal/eventstore"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledgerclient"
	natsjs "github.com/Martian-dev/ai-brain-ledger/internal/nats"
	"github.com/Martian-dev/ai-brain-ledger/internal/outbox"
	"github.com/Martian-dev/ai-brain-ledger/internal/primary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exit", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := eventstore.Open(cfg.Ledger.StorageDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl := access.NewController(store, access.Principal(cfg.Ledger.Deployer), logger)
	backends := make([]access.Principal, 0, len(cfg.Ledger.BootstrapBackends)+1)
	for _, p := range cfg.Ledger.BootstrapBackends {
		backends = append(backends, access.Principal(p))
	}
	if cfg.Collector.Enabled && cfg.Collector.LedgerURL == "" {
		backends = append(backends, access.Principal(cfg.Collector.Principal))
	}
	if err := ctrl.Bootstrap(ctx, backends); err != nil {
		return fmt.Errorf("bootstrap roles: %w", err)
	}

	svc := ledger.NewService(store, ctrl, ledger.Options{MaxBatchEntries: cfg.Ledger.MaxBatchEntries}, logger)

	verifier, err := buildVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var scheduler *collector.Scheduler
	if cfg.Collector.Enabled {
		var closePrimary func() error
		scheduler, closePrimary, err = buildScheduler(ctx, cfg, svc, store, logger)
		if err != nil {
			return err
		}
		defer closePrimary()
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	if cfg.NATS.URL != "" {
		pub, err := natsjs.NewPublisher(cfg.NATS.URL, natsjs.StreamConfig{Name: cfg.NATS.Stream}, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.EnsureStream(ctx); err != nil {
			return err
		}
		dispatcher := outbox.NewDispatcher(store, pub, outbox.Config{
			BatchSize:    cfg.NATS.BatchSize,
			RetryBackoff: cfg.NATS.RetryBackoff,
		}, logger)
		g.Go(func() error { return dispatcher.Run(gctx) })
	} else {
		logger.Warn("nats url not set, ledger events stay in the outbox")
	}

	var reports api.ReportSource
	if scheduler != nil {
		reports = scheduler
	}
	server, err := api.NewServer(svc, ctrl, reports, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      server.Router(verifier),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (auth.Verifier, error) {
	var chain auth.Chain
	if cfg.HMACSecret != "" {
		chain = append(chain, auth.NewHMACVerifier(cfg.HMACSecret, cfg.Audience))
	}
	if cfg.JWKSURL != "" {
		v, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Audience, logger)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	return chain, nil
}

// buildScheduler wires the collector. The returned func closes the primary
// store and must run after the scheduler has stopped.
func buildScheduler(ctx context.Context, cfg *config.Config, svc *ledger.Service, store eventstore.Store, logger *slog.Logger) (*collector.Scheduler, func() error, error) {
	src, err := primary.Open(ctx, cfg.Primary.DSN)
	if err != nil {
		return nil, nil, err
	}

	cc := cfg.Collector
	var transport ledgerclient.Transport
	if cc.LedgerURL != "" {
		transport = ledgerclient.NewHTTP(cc.LedgerURL, cfg.Auth.HMACSecret, cfg.Auth.Audience, access.Principal(cc.Principal))
	} else {
		transport = ledgerclient.NewLocal(svc, access.Principal(cc.Principal))
	}
	client := ledgerclient.New(transport, ledgerclient.Config{
		Gas: ledgerclient.GasSchedule{Base: cc.BaseGas, PerEntry: cc.PerEntryGas, PerByte: cc.PerByteGas},
		Tx:  ledgerclient.TxOptions{GasLimit: cc.GasLimit, FeePerUnit: cc.FeePerUnit},
	}, logger)

	var recorder collector.StateRecorder
	if r, ok := store.(collector.StateRecorder); ok {
		recorder = r
	}

	c := collector.New(src, client, recorder, collector.Config{
		Window:          cc.EffectiveWindow(),
		ConfirmTimeout:  cc.ConfirmTimeout,
		MaxBatchEntries: cfg.Ledger.MaxBatchEntries,
	}, logger)
	return collector.NewScheduler(c, cc.Interval, cc.RunOnStart, logger), src.Close, nil
}
