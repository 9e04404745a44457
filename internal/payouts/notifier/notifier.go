package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/service"
	"go-payouts/pkg/logging"
	"go.uber.org/zap"
)

const (
	BatchCompletedSubject = "payouts.batch.completed"
	WindowChangedSubject  = "payouts.window.changed"
)

type Publisher interface {
	Publish(subject string, data []byte) error
}

type BatchCompletedEvent struct {
	CompletedAt    *time.Time `json:"completed_at"`
	BatchID        string     `json:"batch_id"`
	BatchDate      string     `json:"batch_date"`
	TotalAmountUSD string     `json:"total_amount_usd"`
	PayPalAmount   string     `json:"paypal_amount"`
	PaystackAmount string     `json:"paystack_amount"`
	TotalRequests  int        `json:"total_requests"`
}

type WindowChangedEvent struct {
	At          time.Time `json:"at"`
	Cutoff      time.Time `json:"cutoff"`
	BatchStatus string    `json:"batch_status,omitempty"`
	Countdown   string    `json:"countdown"`
	Warning     bool      `json:"warning"`
	Blocked     bool      `json:"blocked"`
}

// Notifier publishes lifecycle events to NATS. Publishing is fire-and-forget:
// the connection buffers while reconnecting and nothing waits for subscribers.
type Notifier struct {
	publisher Publisher
	logger    *logging.ZapLogger
}

func New(publisher Publisher, logger *logging.ZapLogger) *Notifier {
	return &Notifier{
		publisher: publisher,
		logger:    logger,
	}
}

// Connect dials the broker, retrying in the background if it is down at startup.
func Connect(url string, logger *logging.ZapLogger) (*nats.Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("payouts"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WarnCtx(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.InfoCtx(context.Background(), "nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats failed: %w", err)
	}
	return nc, nil
}

func (n *Notifier) BatchCompleted(ctx context.Context, batch data.WeeklyBatch) error {
	return n.publish(ctx, BatchCompletedSubject, BatchCompletedEvent{
		BatchID:        batch.ID,
		BatchDate:      batch.BatchDate.Format(time.DateOnly),
		CompletedAt:    batch.CompletedAt,
		TotalRequests:  batch.Totals.TotalRequests,
		TotalAmountUSD: batch.Totals.TotalAmountUSD.StringFixed(2),
		PayPalAmount:   batch.Totals.PayPalAmount.StringFixed(2),
		PaystackAmount: batch.Totals.PaystackAmount.StringFixed(2),
	})
}

func (n *Notifier) WindowChanged(ctx context.Context, window service.SubmissionWindow) error {
	return n.publish(ctx, WindowChangedSubject, WindowChangedEvent{
		At:          window.Now,
		Cutoff:      window.Cutoff,
		BatchStatus: string(window.BatchStatus),
		Countdown:   service.Countdown{Cutoff: window.Cutoff, Remaining: window.Remaining, Passed: window.CutoffPassed}.String(),
		Warning:     window.Warning,
		Blocked:     window.Blocked,
	})
}

func (n *Notifier) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling %s event failed: %w", subject, err)
	}
	if err := n.publisher.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing %s failed: %w", subject, err)
	}
	n.logger.DebugCtx(ctx, "event published", zap.String("subject", subject))
	return nil
}
