package paymentrail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go-payouts/internal/common/railprotocol"
	"go-payouts/internal/payouts/data"
	"go-payouts/pkg/logging"
	"go-payouts/pkg/threadsafe"
	"go.uber.org/zap"
)

const defaultThrottle = time.Minute

var (
	ErrThrottled       = errors.New("payment rail is throttling requests")
	ErrRejected        = errors.New("payment rail rejected the disbursement")
	ErrUnknownResponse = errors.New("unexpected payment rail response")
)

type Config struct {
	ServerAddress string
	Timeout       time.Duration
}

// PaymentRail calls the external disbursement service, one request per
// payment method of a batch.
type PaymentRail struct {
	client        *resty.Client
	logger        *logging.ZapLogger
	cfg           Config
	throttleUntil *threadsafe.Time
	now           func() time.Time
}

func NewPaymentRail(cfg Config, logger *logging.ZapLogger) *PaymentRail {
	client := resty.New().
		SetBaseURL(cfg.ServerAddress).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &PaymentRail{
		client:        client,
		logger:        logger,
		cfg:           cfg,
		throttleUntil: threadsafe.NewTime(time.Time{}),
		now:           time.Now,
	}
}

func (pr *PaymentRail) Disburse(
	ctx context.Context,
	batchID string,
	method data.PaymentMethod,
	attempt int,
	requests []data.WithdrawalRequest,
) (railprotocol.DisbursementResult, error) {
	if pr.throttleUntil.Before(pr.now()) {
		return railprotocol.DisbursementResult{}, fmt.Errorf(
			"%w until %s",
			ErrThrottled,
			pr.throttleUntil.Get().Format(time.RFC3339),
		)
	}

	body := railprotocol.DisbursementRequest{
		BatchID:       batchID,
		PaymentMethod: string(method),
		Payouts:       make([]railprotocol.Payout, len(requests)),
		Attempt:       attempt,
	}
	for i, request := range requests {
		body.Payouts[i] = railprotocol.Payout{
			WithdrawalID: request.ID,
			UserEmail:    request.UserEmail,
			Country:      request.Country,
			Amount:       request.NetAmount,
		}
	}

	resp, err := pr.client.
		R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", IdempotencyKey(batchID, method, attempt)).
		SetPathParam("method", string(method)).
		SetBody(body).
		Post("/api/disbursements/{method}")
	if err != nil {
		return railprotocol.DisbursementResult{}, fmt.Errorf("post request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	switch statusCode {
	case http.StatusOK:
		res := railprotocol.DisbursementResult{}
		if err := json.Unmarshal(resp.Body(), &res); err != nil {
			pr.logger.ErrorCtx(ctx, "Error unmarshalling disbursement response", zap.Error(err))
			return railprotocol.DisbursementResult{}, fmt.Errorf("error unmarshalling disbursement response: %w", err)
		}
		pr.logger.DebugCtx(
			ctx,
			"Disbursement answered",
			zap.String("paymentMethod", string(method)),
			zap.Int("settled", len(res.SettledIDs)),
			zap.Int("failed", len(res.FailedIDs)),
		)
		return res, nil
	case http.StatusTooManyRequests:
		wait := retryAfter(resp.Header().Get("Retry-After"))
		pr.throttleUntil.Extend(pr.now().Add(wait))
		pr.logger.WarnCtx(ctx, "Payment rail throttled", zap.Duration("retryAfter", wait))
		return railprotocol.DisbursementResult{}, fmt.Errorf("%w for %s", ErrThrottled, wait)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return railprotocol.DisbursementResult{}, fmt.Errorf("%w: %s", ErrRejected, resp.String())
	default:
		return railprotocol.DisbursementResult{}, fmt.Errorf("%w: status code %v", ErrUnknownResponse, statusCode)
	}
}

// IdempotencyKey identifies one attempt at paying a method's share of a
// batch. The rail may replay its answer for a repeated key, so a retry after
// a failure must send a new one.
func IdempotencyKey(batchID string, method data.PaymentMethod, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", batchID, method, attempt)
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultThrottle
	}
	return time.Duration(seconds) * time.Second
}
