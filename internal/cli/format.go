package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"options-lab/internal/models"
)

// FormatMoney formats an amount as dollars with thousands separators,
// rounded half away from zero to cents.
func FormatMoney(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "n/a"
	}
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	str := d.Abs().StringFixed(2)

	intPart, decPart, _ := strings.Cut(str, ".")
	result := "$" + groupThousands(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatMoney(pnl)
	if pnl > 0 && formatted != "$0.00" {
		return "+" + formatted
	}
	return formatted
}

// FormatBound renders a strategy metric, spelling out unbounded values.
func FormatBound(b models.Bound) string {
	if !b.IsFinite() {
		return b.String()
	}
	return FormatMoney(b.Value)
}

// FormatPrice formats a per-unit price.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatRate formats a fraction as a percentage.
func FormatRate(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatProbability formats a probability in [0, 1].
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// FormatGreeks formats option Greeks on one line.
func FormatGreeks(g models.Greeks) string {
	return fmt.Sprintf("Δ %.4f  Γ %.4f  Θ %.4f  ν %.4f  ρ %.4f", g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
}

// FormatLevels joins price levels such as breakevens.
func FormatLevels(levels []float64) string {
	if len(levels) == 0 {
		return "none"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = FormatPrice(l)
	}
	return strings.Join(parts, " / ")
}

// FormatDate formats a date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDateTime formats a timestamp in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// FormatOptional renders an indicator reading that may be missing.
func FormatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return FormatPrice(*v)
}

// TruncateString shortens s to maxLen runes, ending in "..." when cut.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

// PayoffChart draws payoffs against prices as rows of text. Each column is
// one resampled price; '*' marks the payoff, '-' the zero line and '|' the
// spot column when spot lies inside the range.
func PayoffChart(prices, payoffs []float64, spot float64, width, height int) []string {
	if len(prices) < 2 || len(prices) != len(payoffs) || width < 2 || height < 3 {
		return nil
	}

	lo, hi := payoffs[0], payoffs[0]
	for _, p := range payoffs {
		lo, hi = math.Min(lo, p), math.Max(hi, p)
	}
	lo, hi = math.Min(lo, 0), math.Max(hi, 0)
	if hi == lo {
		hi = lo + 1
	}

	row := func(v float64) int {
		return int(math.Round((hi - v) / (hi - lo) * float64(height-1)))
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	zero := row(0)
	for c := range grid[zero] {
		grid[zero][c] = '-'
	}

	first, last := prices[0], prices[len(prices)-1]
	if spot > first && spot < last {
		col := int(math.Round((spot - first) / (last - first) * float64(width-1)))
		for r := range grid {
			grid[r][col] = '|'
		}
	}

	for c := 0; c < width; c++ {
		x := first + (last-first)*float64(c)/float64(width-1)
		grid[row(interpolate(prices, payoffs, x))][c] = '*'
	}

	label := func(v float64) string { return fmt.Sprintf("%12s ", FormatPnL(v)) }
	blank := strings.Repeat(" ", 13)
	out := make([]string, 0, height+1)
	for r, cells := range grid {
		prefix := blank
		switch r {
		case 0:
			prefix = label(hi)
		case zero:
			prefix = label(0)
		case height - 1:
			prefix = label(lo)
		}
		out = append(out, prefix+strings.TrimRight(string(cells), " "))
	}
	axis := fmt.Sprintf("%s%-*s%s", blank, width/2, FormatPrice(first), fmt.Sprintf("%*s", width-width/2, FormatPrice(last)))
	return append(out, axis)
}

// interpolate evaluates the piecewise linear curve through (xs, ys) at x.
// xs must be increasing.
func interpolate(xs, ys []float64, x float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	for i := 1; i < len(xs); i++ {
		if x <= xs[i] {
			w := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + w*(ys[i]-ys[i-1])
		}
	}
	return ys[len(ys)-1]
}
