package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5"
	"go-payouts/cmd/payouts/config"
	"go-payouts/internal/payouts"
	"go-payouts/internal/payouts/batchmonitor"
	"go-payouts/internal/payouts/data/database"
	"go-payouts/internal/payouts/data/dbrepository"
	"go-payouts/internal/payouts/notifier"
	"go-payouts/internal/payouts/paymentrail"
	"go-payouts/internal/payouts/rates"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go-payouts/pkg/pgxstorage"
	"go-payouts/pkg/timeutils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCtx, cancelCtx := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGABRT,
	)
	defer cancelCtx()

	dbFactory := database.NewPgxDatabaseFactory(cfg.DB, logger)
	storage, err := pgxstorage.New(rootCtx, dbFactory)
	if err != nil {
		logger.ErrorCtx(rootCtx, "Failed to open storage", zap.Error(err))
		return
	}
	defer storage.Close()

	repository := dbrepository.New(storage, logger)
	transactionManager := pgxstorage.NewTransactionsManager(storage, pgx.ReadCommitted)

	exchangeRates, err := rates.Parse(cfg.ExchangeRates)
	if err != nil {
		logger.ErrorCtx(rootCtx, "Invalid exchange rates", zap.Error(err))
		return
	}

	var batchNotifier service.Notifier
	var windowNotifier batchmonitor.WindowNotifier
	if cfg.NATSURL != "" {
		nc, err := notifier.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.ErrorCtx(rootCtx, "Failed to connect to NATS", zap.Error(err))
			return
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				logger.WarnCtx(context.Background(), "NATS drain failed", zap.Error(err))
			}
		}()
		eventNotifier := notifier.New(nc, logger)
		batchNotifier = eventNotifier
		windowNotifier = eventNotifier
	}

	clock := service.Clock(timeutils.Now)
	rail := paymentrail.NewPaymentRail(cfg.PaymentRail, logger)

	batchesService := service.NewBatches(
		transactionManager,
		repository,
		repository,
		rail,
		batchNotifier,
		clock,
		logger,
	)
	withdrawalsService := service.NewWithdrawals(
		transactionManager,
		repository,
		repository,
		exchangeRates,
		cfg.Fees,
		cfg.Schedule,
		clock,
		logger,
	)
	guard := service.NewGuard(repository, cfg.Schedule)
	reports := service.NewReports(repository, clock)

	tokenAuth := jwtauth.New(cfg.JWTConfig.Algorithm, []byte(cfg.JWTConfig.Secret), nil)

	server := payouts.NewServer(cfg.Server, tokenAuth, payouts.Services{
		Batches:     batchesService,
		Reports:     reports,
		Window:      guard,
		Withdrawals: withdrawalsService,
		Clock:       clock,
	}, logger)
	monitor := batchmonitor.NewBatchMonitor(cfg.Monitor, guard, batchesService, windowNotifier, clock, logger)

	if err := run(rootCtx, cfg, server, monitor, logger); err != nil {
		logger.ErrorCtx(rootCtx, "Server shutdown with error", zap.Error(err))
	} else {
		logger.InfoCtx(rootCtx, "Server shutdown gracefully")
	}
}

func run(
	rootCtx context.Context,
	cfg *config.Config,
	server *payouts.Server,
	monitor *batchmonitor.BatchMonitor,
	logger *logging.ZapLogger,
) error {
	g, ctx := errgroup.WithContext(rootCtx)

	context.AfterFunc(ctx, func() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelCtx()

		<-ctx.Done()
		log.Fatal("failed to gracefully shutdown the server")
	})

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		monitor.Run()
		return nil
	})

	g.Go(func() error {
		defer logger.InfoCtx(ctx, "Shutting down server")
		<-ctx.Done()
		monitor.Stop()
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("goroutine error occured: %w", err)
	}

	return nil
}
