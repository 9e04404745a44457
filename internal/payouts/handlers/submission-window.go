package handlers

import (
	"context"
	"net/http"
	"time"

	"go-payouts/internal/common/clientprotocol"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
)

type SubmissionWindowService interface {
	Window(ctx context.Context, now time.Time) (service.SubmissionWindow, error)
}

// SubmissionWindowHandler answers isSubmissionAllowed and timeToNextCutoff for
// display. The answer is advisory, intake checks again when a request arrives.
type SubmissionWindowHandler struct {
	service SubmissionWindowService
	clock   service.Clock
	logger  *logging.ZapLogger
}

func NewSubmissionWindowHandler(
	service SubmissionWindowService,
	clock service.Clock,
	logger *logging.ZapLogger,
) *SubmissionWindowHandler {
	return &SubmissionWindowHandler{
		service: service,
		clock:   clock,
		logger:  logger,
	}
}

func (h *SubmissionWindowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	window, err := h.service.Window(r.Context(), h.clock())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	countdown := service.Countdown{
		Cutoff:    window.Cutoff,
		Remaining: window.Remaining,
		Passed:    window.CutoffPassed,
	}
	writeJSON(r.Context(), w, http.StatusOK, clientprotocol.SubmissionWindow{
		Now:               window.Now,
		Cutoff:            window.Cutoff,
		BatchStatus:       string(window.BatchStatus),
		Countdown:         countdown.String(),
		RemainingSeconds:  int64(window.Remaining / time.Second),
		CutoffPassed:      window.CutoffPassed,
		Warning:           window.Warning,
		Blocked:           window.Blocked,
		SubmissionAllowed: !window.Blocked,
	}, h.logger)
}
