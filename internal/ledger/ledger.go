// Package ledger tracks spend on the pay-per-read API against a daily cap and
// a rolling 30-day cap. Every operation reloads the persisted document and
// applies Rollover first, so there is no background timer.
package ledger

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// DeniedError is returned when a request would breach a spending cap.
type DeniedError struct {
	Window Window
	Reason string
}

func (e *DeniedError) Error() string {
	return "budget denied: " + e.Reason
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed       bool
	Window        Window
	Reason        string
	EstimatedCost Micros
}

// Err returns a *DeniedError for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Window: d.Window, Reason: d.Reason}
}

type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertApproaching
	AlertExceeded
)

func (a AlertLevel) String() string {
	switch a {
	case AlertNone:
		return "none"
	case AlertApproaching:
		return "approaching"
	case AlertExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// Alert is raised by Record when spend crosses a warning threshold or a cap.
type Alert struct {
	Level   AlertLevel
	Window  Window
	Message string
}

type Ledger struct {
	store  Store
	unit   Micros
	now    func() time.Time
	logger zerolog.Logger
}

func New(store Store, unitPriceUSD float64, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		unit:   FromUSD(unitPriceUSD),
		now:    time.Now,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// UnitPrice is the cost of one record read.
func (l *Ledger) UnitPrice() Micros { return l.unit }

// Load returns the current state. A missing or unreadable document yields
// defaults; it is never an error.
func (l *Ledger) Load() State {
	now := l.now()
	s, err := l.store.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn().Err(err).Msg("ledger unreadable, starting fresh")
		}
		s = DefaultState(now)
	}
	return Rollover(s, now)
}

// Status is Load under the name the CLI uses.
func (l *Ledger) Status() State { return l.Load() }

// Admit checks whether spending units more reads stays within both caps.
// It never persists anything.
func (l *Ledger) Admit(units int64) Decision {
	s := l.Load()
	est := l.unit * Micros(units)
	d := Decision{Allowed: true, EstimatedCost: est}

	if limit := s.DailyLimit(); limit > 0 && s.Usage.TodayCost+est > limit {
		return deny(d, WindowDaily, limit, s.Usage.TodayCost, est)
	}
	if limit := s.MonthlyLimit(); limit > 0 && s.Usage.RollingCost+est > limit {
		return deny(d, WindowMonthly, limit, s.Usage.RollingCost, est)
	}
	return d
}

func deny(d Decision, w Window, limit, spent, est Micros) Decision {
	total := spent + est
	d.Allowed = false
	d.Window = w
	d.Reason = fmt.Sprintf("%s limit %s would be exceeded: %s spent + %s estimated = %s (over by %s)",
		w, limit, spent, est, total, total-limit)
	return d
}

// Record adds units reads to both windows and persists the result.
func (l *Ledger) Record(units int64) (Alert, error) {
	if units < 0 {
		return Alert{}, fmt.Errorf("recording usage: negative units %d", units)
	}
	s := l.Load()
	cost := l.unit * Micros(units)
	s.Usage.TodayReads += units
	s.Usage.TodayCost += cost
	s.Usage.RollingReads += units
	s.Usage.RollingCost += cost

	if err := l.store.Save(s); err != nil {
		return Alert{}, fmt.Errorf("saving ledger: %w", err)
	}
	l.logger.Debug().
		Int64("units", units).
		Str("cost", cost.String()).
		Str("today", s.Usage.TodayCost.String()).
		Str("rolling", s.Usage.RollingCost.String()).
		Msg("usage recorded")
	return evaluate(s), nil
}

// evaluate reports exceeded before approaching, daily before monthly.
func evaluate(s State) Alert {
	type window struct {
		name  Window
		spent Micros
		limit Micros
	}
	windows := []window{
		{WindowDaily, s.Usage.TodayCost, s.DailyLimit()},
		{WindowMonthly, s.Usage.RollingCost, s.MonthlyLimit()},
	}
	for _, w := range windows {
		if w.limit > 0 && w.spent >= w.limit {
			return Alert{
				Level:   AlertExceeded,
				Window:  w.name,
				Message: fmt.Sprintf("%s budget exceeded: %s of %s", w.name, w.spent, w.limit),
			}
		}
	}
	warn := s.warnThreshold()
	for _, w := range windows {
		if w.limit > 0 && w.spent >= w.limit.scale(warn) {
			return Alert{
				Level:  AlertApproaching,
				Window: w.name,
				Message: fmt.Sprintf("approaching %s budget: %s of %s (%.0f%%)",
					w.name, w.spent, w.limit, 100*w.spent.USD()/w.limit.USD()),
			}
		}
	}
	return Alert{Level: AlertNone}
}

func (l *Ledger) SetDailyLimit(usd float64) error {
	return l.mutate(func(s *State) error {
		if usd < 0 {
			return fmt.Errorf("daily limit must not be negative, got %.2f", usd)
		}
		s.DailyLimitUSD = usd
		return nil
	})
}

func (l *Ledger) SetMonthlyLimit(usd float64) error {
	return l.mutate(func(s *State) error {
		if usd < 0 {
			return fmt.Errorf("monthly limit must not be negative, got %.2f", usd)
		}
		s.MonthlyLimitUSD = usd
		return nil
	})
}

// Reset zeroes all accounting and keeps the configured caps.
func (l *Ledger) Reset() error {
	return l.mutate(func(s *State) error {
		now := l.now().UTC()
		s.Usage = Usage{Today: now.Format(dayLayout), LastReset: now}
		return nil
	})
}

func (l *Ledger) mutate(fn func(*State) error) error {
	s := l.Load()
	if err := fn(&s); err != nil {
		return err
	}
	if err := l.store.Save(s); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}
