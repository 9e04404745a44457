package service

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-payouts/internal/payouts/data"
)

func request(id, user, country string, method data.PaymentMethod, amount, fee string) data.WithdrawalRequest {
	a := decimal.RequireFromString(amount)
	f := decimal.RequireFromString(fee)
	return data.WithdrawalRequest{
		ID:            id,
		UserID:        user,
		Country:       country,
		PaymentMethod: method,
		Status:        data.PendingWithdrawal,
		AmountUSD:     a,
		Fee:           f,
		NetAmount:     a.Sub(f),
	}
}

func weekRequests() []data.WithdrawalRequest {
	return []data.WithdrawalRequest{
		request("w1", "u1", "US", data.PayPal, "50.00", "0.50"),
		request("w2", "u2", "GB", data.PayPal, "30.00", "0.30"),
		request("w3", "u1", "US", data.PayPal, "20.00", "0.20"),
		request("w4", "u3", "NG", data.Paystack, "10.00", "0.00"),
	}
}

func TestSummarize(t *testing.T) {
	summaries := Summarize(weekRequests())
	require.Len(t, summaries, 2)

	paypal := summaries[0]
	assert.Equal(t, data.PayPal, paypal.PaymentMethod)
	assert.Equal(t, 3, paypal.Count)
	assert.Equal(t, "100.00", paypal.GrossAmount.StringFixed(2))
	assert.Equal(t, "1.00", paypal.TotalFees.StringFixed(2))
	assert.Equal(t, "99.00", paypal.NetAmount.StringFixed(2))
	assert.Equal(t, []string{"GB", "US"}, paypal.DistinctCountries)
	assert.Equal(t, []string{"u1", "u2"}, paypal.DistinctUsers)

	paystack := summaries[1]
	assert.Equal(t, data.Paystack, paystack.PaymentMethod)
	assert.Equal(t, 1, paystack.Count)
	assert.Equal(t, []string{"NG"}, paystack.DistinctCountries)

	totals := TotalsOf(summaries)
	assert.Equal(t, 4, totals.TotalRequests)
	assert.Equal(t, "110.00", totals.TotalAmountUSD.StringFixed(2))
	assert.Equal(t, "100.00", totals.PayPalAmount.StringFixed(2))
	assert.Equal(t, "10.00", totals.PaystackAmount.StringFixed(2))
	assert.NoError(t, CheckTotals(totals))
}

func TestSummarize_Empty(t *testing.T) {
	summaries := Summarize(nil)
	require.Len(t, summaries, 2)
	for _, summary := range summaries {
		assert.Equal(t, 0, summary.Count)
		assert.True(t, summary.GrossAmount.IsZero())
		assert.Empty(t, summary.DistinctCountries)
		assert.Empty(t, summary.DistinctUsers)
	}
}

func TestSummarize_OrderIndependent(t *testing.T) {
	requests := weekRequests()
	requests = append(requests,
		request("w5", "u4", "KE", data.Paystack, "12.34", "0.19"),
		request("w6", "u5", "", data.PayPal, "0.99", "0.03"),
	)
	want := Summarize(requests)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := slices.Clone(requests)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := Summarize(shuffled)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].PaymentMethod, got[i].PaymentMethod)
			assert.Equal(t, want[i].Count, got[i].Count)
			assert.True(t, want[i].GrossAmount.Equal(got[i].GrossAmount))
			assert.True(t, want[i].TotalFees.Equal(got[i].TotalFees))
			assert.True(t, want[i].NetAmount.Equal(got[i].NetAmount))
			assert.Equal(t, want[i].DistinctCountries, got[i].DistinctCountries)
			assert.Equal(t, want[i].DistinctUsers, got[i].DistinctUsers)
		}
	}
}

func TestSummarize_UnknownMethod(t *testing.T) {
	requests := append(weekRequests(), request("w9", "u9", "DE", "stripe", "5.00", "0.00"))

	summaries := Summarize(requests)
	require.Len(t, summaries, 3)
	assert.Equal(t, data.PaymentMethod("stripe"), summaries[2].PaymentMethod)

	// the stray method counts towards the total but neither method column
	totals := TotalsOf(summaries)
	assert.Equal(t, "115.00", totals.TotalAmountUSD.StringFixed(2))
	assert.True(t, errors.Is(CheckTotals(totals), ErrAggregationMismatch))
}

func TestTolerance(t *testing.T) {
	assert.Equal(t, "0.01", Tolerance(0).StringFixed(2))
	assert.Equal(t, "0.01", Tolerance(1).StringFixed(2))
	assert.Equal(t, "0.04", Tolerance(4).StringFixed(2))
}

func TestTotalsMatch(t *testing.T) {
	frozen := TotalsOf(Summarize(weekRequests()))

	tests := []struct {
		name   string
		modify func(t *data.BatchTotals)
		want   bool
	}{
		{name: "identical", modify: func(*data.BatchTotals) {}, want: true},
		{
			name: "rounding within tolerance",
			modify: func(t *data.BatchTotals) {
				t.TotalAmountUSD = t.TotalAmountUSD.Add(decimal.RequireFromString("0.03"))
			},
			want: true,
		},
		{
			name: "beyond tolerance",
			modify: func(t *data.BatchTotals) {
				t.PaystackAmount = t.PaystackAmount.Add(decimal.RequireFromString("0.05"))
			},
			want: false,
		},
		{name: "different count", modify: func(t *data.BatchTotals) { t.TotalRequests++ }, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recomputed := frozen
			tt.modify(&recomputed)
			assert.Equal(t, tt.want, TotalsMatch(recomputed, frozen))
		})
	}
}
