package report

import (
	"fmt"
	"strings"
	"time"
)

const renderTimeLayout = "2006-01-02 15:04"

// Render produces the verbose report text sent to notification channels.
// Markdown bold markers keep it readable in Telegram and plain email
// alike. Missing sections render as N/A.
func Render(r *Report, quote string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Trading Report (%s)*\n", r.Period)
	fmt.Fprintf(&b, "%s\n", r.GeneratedAt.Format(renderTimeLayout))

	b.WriteString("\n*Ledger*\n")
	if r.Ledger == nil {
		b.WriteString("N/A\n")
	} else {
		l := r.Ledger
		fmt.Fprintf(&b, "Buys: %d (%.2f %s invested)\n", l.Buys, l.Invested, quote)
		fmt.Fprintf(&b, "Sells: %d (%.2f %s recovered)\n", l.Sells, l.Recovered, quote)
		fmt.Fprintf(&b, "Gross profit: %+.2f %s (fees %.2f)\n", l.GrossProfit, quote, l.Fees)
		fmt.Fprintf(&b, "Symbols traded: %d\n", l.Symbols)
		fmt.Fprintf(&b, "Exit orders: %d active, %d profit, %d stop, %d cancelled\n",
			l.Counts.Active, l.Counts.ProfitFilled, l.Counts.StopFilled, l.Counts.Cancelled)
		fmt.Fprintf(&b, "Performance: today %+.1f%% | 7d %+.1f%% | 30d %+.1f%% | total %+.1f%%\n",
			l.Performance.Today, l.Performance.Week, l.Performance.Month, l.Performance.Total)
	}

	b.WriteString("\n*Portfolio*\n")
	if r.Portfolio == nil || r.Portfolio.Classification == nil {
		b.WriteString("N/A\n")
	} else {
		c := r.Portfolio.Classification
		fmt.Fprintf(&b, "Guaranteed profit: %.2f %s across %d orders\n",
			c.GuaranteedProfit, quote, len(c.Guaranteed)+len(c.Holdings))
		stale := ""
		if c.StalePrices {
			stale = " (prices stale)"
		}
		fmt.Fprintf(&b, "Holdings: %.2f %s across %d positions%s\n",
			c.HoldingsValue, quote, len(c.Holdings), stale)
		for _, h := range c.Holdings {
			if h.PriceUnavailable {
				fmt.Fprintf(&b, "  %s: %.6f kept, no price\n", h.Symbol, h.KeptQuantity)
				continue
			}
			fmt.Fprintf(&b, "  %s: %.6f kept @ %.4f = %.2f %s\n",
				h.Symbol, h.KeptQuantity, h.MarketPrice, h.Value, quote)
		}
		if s := r.Portfolio.Summary; s != nil {
			fmt.Fprintf(&b, "Account: %d cryptos, total %.2f %s, free %.2f %s\n",
				s.ActiveCryptos, s.TotalValue, quote, s.FreeQuote, quote)
		}
	}

	b.WriteString("\n*Cycles*\n")
	if r.Cycles == nil {
		b.WriteString("N/A\n")
	} else {
		c := r.Cycles
		fmt.Fprintf(&b, "%d started, %d completed (%s success), %d errors\n",
			c.Starts, c.Completions, rateString(c.SuccessRate), c.Errors)
		if c.LastRun != nil {
			fmt.Fprintf(&b, "Last run: %s\n", c.LastRun.Format(renderTimeLayout))
		}
	}

	b.WriteString("\n*System*\n")
	if r.Health == nil {
		b.WriteString("N/A\n")
	} else {
		load := "N/A"
		if r.Health.LoadAvg1 != nil {
			load = fmt.Sprintf("%.2f", *r.Health.LoadAvg1)
		}
		fmt.Fprintf(&b, "Disk %s | Mem %s | CPU %s | Load %s\n",
			metricString(r.Health.DiskUsedPct, "%.1f%%"),
			metricString(r.Health.MemUsedPct, "%.1f%%"),
			metricString(r.Health.CPUTempC, "%.1fC"),
			load)
	}

	if len(r.Problems) > 0 {
		b.WriteString("\n*Problems*\n")
		for _, p := range r.Problems {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return b.String()
}

// Condensed produces the one-line report summary.
func Condensed(r *Report, quote string) string {
	parts := make([]string, 0, 5)

	if r.Ledger != nil {
		parts = append(parts, fmt.Sprintf("%d buys / %d sells, gross %+.2f %s",
			r.Ledger.Buys, r.Ledger.Sells, r.Ledger.GrossProfit, quote))
	} else {
		parts = append(parts, "ledger N/A")
	}

	if r.Portfolio != nil && r.Portfolio.Classification != nil {
		c := r.Portfolio.Classification
		parts = append(parts, fmt.Sprintf("guaranteed %.2f, holdings %.2f",
			c.GuaranteedProfit, c.HoldingsValue))
	}

	if r.Cycles != nil {
		parts = append(parts, fmt.Sprintf("cycles %d/%d (%s)",
			r.Cycles.Completions, r.Cycles.Starts, rateString(r.Cycles.SuccessRate)))
	}

	if r.Health != nil {
		parts = append(parts, fmt.Sprintf("health %s", r.Health.Worst()))
	}

	return fmt.Sprintf("%s report %s: %s",
		r.Period, r.GeneratedAt.Format("2006-01-02"), strings.Join(parts, ", "))
}

func rateString(rate *float64) string {
	if rate == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", *rate)
}

func metricString(m Metric, format string) string {
	if m.Value == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *m.Value) + " " + string(m.Level)
}

// LastRunAge formats how long ago the last cycle ran, for alerting on a
// stalled bot.
func LastRunAge(r *Report, now time.Time) string {
	if r.Cycles == nil || r.Cycles.LastRun == nil {
		return "N/A"
	}
	age := now.Sub(*r.Cycles.LastRun)
	if age < 0 {
		age = 0
	}
	return age.Round(time.Minute).String()
}
