package ledger

import "time"

const (
	DefaultDailyLimitUSD   = 1.00
	DefaultMonthlyLimitUSD = 20.00
	DefaultWarnThreshold   = 0.8

	// RollingWindow is the length of the monthly accounting period.
	RollingWindow = 30 * 24 * time.Hour

	dayLayout = "2006-01-02"
)

// Usage is the mutable accounting block of the ledger.
type Usage struct {
	Today        string    `json:"today"`
	TodayReads   int64     `json:"todayReads"`
	TodayCost    Micros    `json:"todayCostMicros"`
	RollingReads int64     `json:"rollingReads"`
	RollingCost  Micros    `json:"rollingCostMicros"`
	LastReset    time.Time `json:"lastReset"`
}

// State is the persisted ledger document. A zero limit means unlimited.
type State struct {
	DailyLimitUSD   float64 `json:"dailyLimitUsd"`
	MonthlyLimitUSD float64 `json:"monthlyLimitUsd"`
	WarnThreshold   float64 `json:"warnThreshold"`
	Usage           Usage   `json:"usage"`
}

func DefaultState(now time.Time) State {
	return State{
		DailyLimitUSD:   DefaultDailyLimitUSD,
		MonthlyLimitUSD: DefaultMonthlyLimitUSD,
		WarnThreshold:   DefaultWarnThreshold,
		Usage: Usage{
			Today:     now.UTC().Format(dayLayout),
			LastReset: now.UTC(),
		},
	}
}

// Rollover applies lazy window expiry. A later UTC day zeroes today's
// counters; the rolling counters are zeroed once RollingWindow has passed
// since LastReset. Today never moves backwards.
func Rollover(s State, now time.Time) State {
	now = now.UTC()
	day := now.Format(dayLayout)
	if s.Usage.Today < day {
		s.Usage.Today = day
		s.Usage.TodayReads = 0
		s.Usage.TodayCost = 0
	}
	switch {
	case s.Usage.LastReset.IsZero():
		s.Usage.LastReset = now
	case now.Sub(s.Usage.LastReset) >= RollingWindow:
		s.Usage.RollingReads = 0
		s.Usage.RollingCost = 0
		s.Usage.LastReset = now
	}
	return s
}

func (s State) DailyLimit() Micros   { return FromUSD(s.DailyLimitUSD) }
func (s State) MonthlyLimit() Micros { return FromUSD(s.MonthlyLimitUSD) }

func (s State) warnThreshold() float64 {
	if s.WarnThreshold <= 0 || s.WarnThreshold > 1 {
		return DefaultWarnThreshold
	}
	return s.WarnThreshold
}
