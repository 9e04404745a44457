package service

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"go-payouts/internal/payouts/data"
)

var centsPerRequest = decimal.New(1, -2)

// Summary aggregates the requests of one payment method.
type Summary struct {
	PaymentMethod     data.PaymentMethod
	Count             int
	GrossAmount       decimal.Decimal
	TotalFees         decimal.Decimal
	NetAmount         decimal.Decimal
	DistinctCountries []string
	DistinctUsers     []string
}

// Summarize groups requests by payment method. Every known method is present,
// in data.PaymentMethods order, even with no requests. The result does not
// depend on the order of requests.
func Summarize(requests []data.WithdrawalRequest) []Summary {
	type accumulator struct {
		summary   Summary
		countries map[string]struct{}
		users     map[string]struct{}
	}
	groups := make(map[data.PaymentMethod]*accumulator)
	order := slices.Clone(data.PaymentMethods)
	group := func(method data.PaymentMethod) *accumulator {
		acc, ok := groups[method]
		if !ok {
			acc = &accumulator{
				summary: Summary{
					PaymentMethod: method,
					GrossAmount:   decimal.Zero,
					TotalFees:     decimal.Zero,
					NetAmount:     decimal.Zero,
				},
				countries: make(map[string]struct{}),
				users:     make(map[string]struct{}),
			}
			groups[method] = acc
		}
		return acc
	}
	for _, method := range order {
		group(method)
	}

	for _, request := range requests {
		acc := group(request.PaymentMethod)
		acc.summary.Count++
		acc.summary.GrossAmount = acc.summary.GrossAmount.Add(request.AmountUSD)
		acc.summary.TotalFees = acc.summary.TotalFees.Add(request.Fee)
		acc.summary.NetAmount = acc.summary.NetAmount.Add(request.NetAmount)
		if request.Country != "" {
			acc.countries[request.Country] = struct{}{}
		}
		acc.users[request.UserID] = struct{}{}
	}

	// methods outside the closed set still show up, after the known ones
	extra := make([]data.PaymentMethod, 0)
	for method := range groups {
		if !slices.Contains(order, method) {
			extra = append(extra, method)
		}
	}
	slices.Sort(extra)
	order = append(order, extra...)

	result := make([]Summary, 0, len(order))
	for _, method := range order {
		acc := groups[method]
		acc.summary.DistinctCountries = sortedKeys(acc.countries)
		acc.summary.DistinctUsers = sortedKeys(acc.users)
		result = append(result, acc.summary)
	}
	return result
}

// TotalsOf folds summaries into the aggregates stored on a batch.
func TotalsOf(summaries []Summary) data.BatchTotals {
	totals := data.BatchTotals{
		TotalAmountUSD: decimal.Zero,
		PayPalAmount:   decimal.Zero,
		PaystackAmount: decimal.Zero,
	}
	for _, summary := range summaries {
		totals.TotalRequests += summary.Count
		totals.TotalAmountUSD = totals.TotalAmountUSD.Add(summary.GrossAmount)
		switch summary.PaymentMethod {
		case data.PayPal:
			totals.PayPalAmount = totals.PayPalAmount.Add(summary.GrossAmount)
		case data.Paystack:
			totals.PaystackAmount = totals.PaystackAmount.Add(summary.GrossAmount)
		}
	}
	return totals
}

// Tolerance is the rounding slack allowed between totals over requestCount
// requests: one cent per request, and never less than one cent.
func Tolerance(requestCount int) decimal.Decimal {
	return centsPerRequest.Mul(decimal.NewFromInt(int64(max(requestCount, 1))))
}

// CheckTotals verifies paypalAmount + paystackAmount == totalAmountUSD within tolerance.
func CheckTotals(totals data.BatchTotals) error {
	methods := totals.PayPalAmount.Add(totals.PaystackAmount)
	diff := methods.Sub(totals.TotalAmountUSD).Abs()
	if diff.GreaterThan(Tolerance(totals.TotalRequests)) {
		return fmt.Errorf(
			"%w: methods sum to %s but total is %s",
			ErrAggregationMismatch,
			methods.StringFixed(2),
			totals.TotalAmountUSD.StringFixed(2),
		)
	}
	return nil
}

// TotalsMatch compares recomputed totals with frozen ones.
func TotalsMatch(recomputed, frozen data.BatchTotals) bool {
	if recomputed.TotalRequests != frozen.TotalRequests {
		return false
	}
	tolerance := Tolerance(frozen.TotalRequests)
	within := func(a, b decimal.Decimal) bool {
		return a.Sub(b).Abs().LessThanOrEqual(tolerance)
	}
	return within(recomputed.TotalAmountUSD, frozen.TotalAmountUSD) &&
		within(recomputed.PayPalAmount, frozen.PayPalAmount) &&
		within(recomputed.PaystackAmount, frozen.PaystackAmount)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
