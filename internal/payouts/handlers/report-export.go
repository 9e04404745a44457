package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

type ReportService interface {
	ExportPendingReport(ctx context.Context) (service.Report, error)
	ExportBatchReport(ctx context.Context, batchID string) (service.Report, error)
}

type PendingReportHandler struct {
	service ReportService
	logger  *logging.ZapLogger
}

func NewPendingReportHandler(service ReportService, logger *logging.ZapLogger) *PendingReportHandler {
	return &PendingReportHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PendingReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ExportPendingReport(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeReport(w, r, report, h.logger)
}

type BatchReportHandler struct {
	service ReportService
	logger  *logging.ZapLogger
}

func NewBatchReportHandler(service ReportService, logger *logging.ZapLogger) *BatchReportHandler {
	return &BatchReportHandler{
		service: service,
		logger:  logger,
	}
}

func (h *BatchReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ExportBatchReport(r.Context(), chi.URLParam(r, batchIDParam))
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	writeReport(w, r, report, h.logger)
}

func writeReport(w http.ResponseWriter, r *http.Request, report service.Report, logger *logging.ZapLogger) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report.Content); err != nil {
		logger.ErrorCtx(r.Context(), failedToWriteResponseErrorMessage, zap.Error(err))
		return
	}
	logger.DebugCtx(r.Context(), "report exported", zap.String("filename", report.Filename), zap.Int("rows", report.Rows))
}
