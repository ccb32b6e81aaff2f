package checkout

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Plan is a computed installment schedule.
type Plan struct {
	Price   int
	Fee     int
	Periods []storage.Installment
}

// Total returns the sum of all periods: price plus the one-time fee.
func (p *Plan) Total() int {
	total := 0
	for _, i := range p.Periods {
		total += i.Amount
	}
	return total
}

// BuildPlan computes the installment schedule for a price.
//
// The base period is the price split evenly and rounded UP to the
// round unit, so early periods are round numbers a customer can
// transfer from memory. The last period absorbs the remainder and the
// first period carries the one-time fee; the schedule always sums to
// price + fee exactly. Rounding up can push the early periods past the
// whole price on small amounts, so the base steps back down by whole
// units, and when not even one unit fits per period the plan falls
// back to a plain even split.
func BuildPlan(price int, policy config.CheckoutPolicy, now time.Time) *Plan {
	n := policy.InstallmentPeriods
	unit := policy.InstallmentRoundUnit

	base := int(math.Ceil(float64(price)/float64(n)/float64(unit))) * unit
	fee := int(math.Round(float64(price) * policy.InstallmentFeeRate))
	for base > unit && price-(n-1)*base <= 0 {
		base -= unit
	}
	if price-(n-1)*base <= 0 {
		base = price / n
	}
	last := price - (n-1)*base

	periods := make([]storage.Installment, n)
	for i := 0; i < n; i++ {
		amount := base
		if i == n-1 {
			amount = last
		}
		if i == 0 {
			amount += fee
		}
		offset := 0
		if i < len(policy.InstallmentDueOffsets) {
			offset = policy.InstallmentDueOffsets[i]
		}
		periods[i] = storage.Installment{
			Period: i + 1,
			Amount: amount,
			DueAt:  now.AddDate(0, 0, offset),
		}
	}
	return &Plan{Price: price, Fee: fee, Periods: periods}
}

// Describe renders the schedule as a Thai reply.
func (p *Plan) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "แผนผ่อนชำระ %d งวด (ค่าธรรมเนียม %s บาท ครั้งเดียว)\n", len(p.Periods), formatBaht(p.Fee))
	for _, period := range p.Periods {
		fmt.Fprintf(&b, "งวดที่ %d: %s บาท (ชำระภายใน %s)\n",
			period.Period, formatBaht(period.Amount), period.DueAt.Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "รวมทั้งหมด %s บาท", formatBaht(p.Total()))
	return b.String()
}

// formatBaht renders an amount with thousands separators.
func formatBaht(amount int) string {
	s := fmt.Sprintf("%d", amount)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
