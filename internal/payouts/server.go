package payouts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go-payouts/internal/payouts/handlers"
	"go-payouts/internal/payouts/middleware"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
)

const AdminRole = "admin"

type Config struct {
	ServerAddress   string
	ShutdownTimeout time.Duration
}

// Services are the use cases the HTTP surface exposes.
type Services struct {
	Batches interface {
		handlers.CurrentBatchService
		handlers.BatchSummaryService
		handlers.BatchLockService
		handlers.BatchApproveService
		handlers.DisbursementService
	}
	Reports     handlers.ReportService
	Window      handlers.SubmissionWindowService
	Withdrawals handlers.WithdrawalSubmitService
	Clock       service.Clock
}

type Server struct {
	logger     *logging.ZapLogger
	httpServer *http.Server
	cfg        Config
}

func NewServer(
	cfg Config,
	tokenAuth *jwtauth.JWTAuth,
	services Services,
	logger *logging.ZapLogger,
) *Server {
	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           createMux(tokenAuth, services, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		httpServer: srv,
	}
}

func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server ListenAndServe failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func createMux(
	tokenAuth *jwtauth.JWTAuth,
	services Services,
	logger *logging.ZapLogger,
) *chi.Mux {
	currentBatchHandler := handlers.NewCurrentBatchHandler(services.Batches, logger)
	pendingSummaryHandler := handlers.NewPendingSummaryHandler(services.Batches, logger)
	batchSummaryHandler := handlers.NewBatchSummaryHandler(services.Batches, logger)
	batchLockHandler := handlers.NewBatchLockHandler(services.Batches, logger)
	batchApproveHandler := handlers.NewBatchApproveHandler(services.Batches, logger)
	startProcessingHandler := handlers.NewStartProcessingHandler(services.Batches, logger)
	retryDisbursementHandler := handlers.NewRetryDisbursementHandler(services.Batches, logger)
	pendingReportHandler := handlers.NewPendingReportHandler(services.Reports, logger)
	batchReportHandler := handlers.NewBatchReportHandler(services.Reports, logger)
	submissionWindowHandler := handlers.NewSubmissionWindowHandler(services.Window, services.Clock, logger)
	withdrawalSubmitHandler := handlers.NewWithdrawalSubmitHandler(services.Withdrawals, logger)

	requireAdmin := middleware.NewRequireRole(AdminRole, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.NewLoggerContext().CreateHandler)
	router.Use(middleware.NewPanicRecover(logger).CreateHandler)

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/withdrawals", func(router chi.Router) {
		router.Get("/window", submissionWindowHandler.ServeHTTP)

		router.Group(func(router chi.Router) {
			router.Use(jwtauth.Verifier(tokenAuth))
			router.Use(jwtauth.Authenticator(tokenAuth))
			router.Post("/", withdrawalSubmitHandler.ServeHTTP)
		})
	})

	router.Route("/api/admin", func(router chi.Router) {
		router.Use(jwtauth.Verifier(tokenAuth))
		router.Use(jwtauth.Authenticator(tokenAuth))
		router.Use(requireAdmin.CreateHandler)

		router.Get("/reports/pending.csv", pendingReportHandler.ServeHTTP)
		router.Route("/batches", func(router chi.Router) {
			router.Get("/current", currentBatchHandler.ServeHTTP)
			router.Post("/current/lock", batchLockHandler.ServeHTTP)
			router.Get("/summary", pendingSummaryHandler.ServeHTTP)
			router.Get("/{batchID}/summary", batchSummaryHandler.ServeHTTP)
			router.Get("/{batchID}/report.csv", batchReportHandler.ServeHTTP)
			router.Post("/{batchID}/approve", batchApproveHandler.ServeHTTP)
			router.Post("/{batchID}/process", startProcessingHandler.ServeHTTP)
			router.Post("/{batchID}/retry", retryDisbursementHandler.ServeHTTP)
		})
	})

	return router
}
