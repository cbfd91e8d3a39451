// Package report builds the periodic activity reports sent to the
// notification channels. Every section degrades independently: a missing
// journal, an unreachable exchange or a failed ledger read turns into an
// N/A section and a problem note, never a failed report.
package report

import (
	"context"
	"fmt"
	"time"

	"cryptoGuardBot/internal/cyclelog"
	"cryptoGuardBot/internal/domain"
	"cryptoGuardBot/internal/portfolio"
	"cryptoGuardBot/internal/ports"
)

// Period selects the report window.
type Period string

const (
	PeriodDay  Period = "day"
	PeriodWeek Period = "week"
)

// Start returns the window's inclusive lower bound relative to asOf.
func (p Period) Start(asOf time.Time) time.Time {
	if p == PeriodWeek {
		return asOf.AddDate(0, 0, -7)
	}
	return asOf.AddDate(0, 0, -1)
}

// Performance is the profit percentage per window. Field names are
// stable; the dashboard renders them positionally.
type Performance struct {
	Today float64 `json:"today"`
	Week  float64 `json:"7d"`
	Month float64 `json:"30d"`
	Total float64 `json:"total"`
}

// LedgerSection carries the transaction and exit order aggregates.
type LedgerSection struct {
	Buys        int
	Sells       int
	Invested    float64
	Recovered   float64
	Fees        float64
	GrossProfit float64
	Symbols     int
	Counts      ports.StatusCounts
	Performance Performance
}

// PortfolioSection carries the holdings / guaranteed-profit split and,
// when the exchange is reachable, the account summary.
type PortfolioSection struct {
	Classification *portfolio.Classification
	Summary        *portfolio.Summary
}

// CycleSection summarizes journal activity. SuccessRate is nil when no
// cycle started in the window.
type CycleSection struct {
	Starts      int
	Completions int
	Errors      int
	Buys        int
	SuccessRate *float64
	LastRun     *time.Time
}

// Report is one rendered reporting pass. Nil sections mean the underlying
// source was unavailable; Problems lists what degraded.
type Report struct {
	Period      Period
	GeneratedAt time.Time
	Ledger      *LedgerSection
	Portfolio   *PortfolioSection
	Cycles      *CycleSection
	Health      *Health
	Problems    []string
}

// LedgerSource reads the consistent ledger snapshot behind a report.
type LedgerSource interface {
	Snapshot(ctx context.Context, since, asOf time.Time) (*ports.LedgerSnapshot, error)
}

// ActivitySource scans the cycle journal.
type ActivitySource interface {
	Scan(since, until time.Time) (*cyclelog.Activity, error)
}

// ClassifierSource buckets active exit orders.
type ClassifierSource interface {
	Classify(ctx context.Context, orders []*domain.ExitOrder) *portfolio.Classification
}

// SummarySource values the account portfolio.
type SummarySource interface {
	Summarize(ctx context.Context) (*portfolio.Summary, error)
}

// HealthSource gathers host metrics.
type HealthSource interface {
	Collect(ctx context.Context) *Health
}

// Config holds the aggregator's sources. Ledger, Classifier and Logger
// are required; the rest are optional and their sections degrade when
// absent.
type Config struct {
	Ledger     LedgerSource
	Classifier ClassifierSource
	Journal    ActivitySource
	Summarizer SummarySource
	Health     HealthSource
	Logger     ports.Logger
}

// Aggregator assembles reports from the ledger, the classifier, the
// cycle journal and host health.
type Aggregator struct {
	ledger     LedgerSource
	classifier ClassifierSource
	journal    ActivitySource
	summarizer SummarySource
	health     HealthSource
	logger     ports.Logger
}

// New creates a new report aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger source is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	return &Aggregator{
		ledger:     cfg.Ledger,
		classifier: cfg.Classifier,
		journal:    cfg.Journal,
		summarizer: cfg.Summarizer,
		health:     cfg.Health,
		logger:     cfg.Logger,
	}, nil
}

// Build assembles the report for the period ending at asOf.
func (a *Aggregator) Build(ctx context.Context, period Period, asOf time.Time) *Report {
	r := &Report{Period: period, GeneratedAt: asOf}
	since := period.Start(asOf)

	snap, err := a.ledger.Snapshot(ctx, since, asOf)
	if err != nil {
		a.logger.Error(ctx, err, "Ledger snapshot failed, reporting without ledger figures")
		r.Problems = append(r.Problems, fmt.Sprintf("ledger: %v", err))
	} else {
		r.Ledger = &LedgerSection{
			Buys:        snap.Totals.Buys,
			Sells:       snap.Totals.Sells,
			Invested:    snap.Totals.Invested,
			Recovered:   snap.Totals.Recovered,
			Fees:        snap.Totals.Fees,
			GrossProfit: snap.Totals.GrossProfit(),
			Symbols:     snap.Totals.Symbols,
			Counts:      snap.Counts,
			Performance: Performance{
				Today: profitPct(snap.Today),
				Week:  profitPct(snap.Week),
				Month: profitPct(snap.Month),
				Total: profitPct(snap.AllTime),
			},
		}

		r.Portfolio = &PortfolioSection{
			Classification: a.classifier.Classify(ctx, snap.Active),
		}
		if a.summarizer != nil {
			summary, err := a.summarizer.Summarize(ctx)
			if err != nil {
				a.logger.Warn(ctx, "Portfolio summary unavailable", map[string]interface{}{"error": err.Error()})
				r.Problems = append(r.Problems, fmt.Sprintf("portfolio summary: %v", err))
			} else {
				r.Portfolio.Summary = summary
			}
		}
	}

	if a.journal != nil {
		activity, err := a.journal.Scan(since, asOf)
		if err != nil {
			a.logger.Warn(ctx, "Cycle journal unavailable", map[string]interface{}{"error": err.Error()})
			r.Problems = append(r.Problems, fmt.Sprintf("cycle journal: %v", err))
		} else {
			r.Cycles = &CycleSection{
				Starts:      activity.Starts,
				Completions: activity.Completions,
				Errors:      activity.Errors,
				Buys:        activity.Buys,
				SuccessRate: successRate(activity.Starts, activity.Completions),
				LastRun:     activity.LastEvent,
			}
		}
	}

	if a.health != nil {
		r.Health = a.health.Collect(ctx)
	}
	return r
}

// profitPct is gross profit as a percentage of the invested amount.
func profitPct(t ports.PeriodTotals) float64 {
	if t.Invested <= 0 {
		return 0
	}
	return t.GrossProfit() / t.Invested * 100
}

// successRate is completions over starts, clamped to [0, 100]. Clock
// skew between journal writes can push completions past starts; the rate
// is still capped. Nil means no cycle started in the window.
func successRate(starts, completions int) *float64 {
	if starts <= 0 {
		return nil
	}
	rate := float64(completions) / float64(starts) * 100
	if rate > 100 {
		rate = 100
	}
	if rate < 0 {
		rate = 0
	}
	return &rate
}
