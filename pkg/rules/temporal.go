package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TemporalContext describes which periods the warehouse holds data for.
// It turns relative terms ("current", "latest") into concrete filter values.
type TemporalContext struct {
	AvailableYears []int  `yaml:"available_years" json:"available_years"`
	LatestYear     int    `yaml:"latest_year" json:"latest_year"`
	LatestQuarter  int    `yaml:"latest_quarter" json:"latest_quarter"`
	LatestMonth    int    `yaml:"latest_month" json:"latest_month"`
	LatestDate     string `yaml:"latest_date,omitempty" json:"latest_date,omitempty"` // YYYY-MM-DD
}

// DefaultTemporalContext is used when no availability record is configured.
func DefaultTemporalContext() TemporalContext {
	return TemporalContext{
		AvailableYears: []int{2024},
		LatestYear:     2024,
		LatestQuarter:  4,
		LatestMonth:    12,
	}
}

// Validate rejects out-of-range periods.
func (t TemporalContext) Validate() error {
	if t.LatestYear <= 0 {
		return fmt.Errorf("latest_year is required")
	}
	if t.LatestQuarter < 1 || t.LatestQuarter > 4 {
		return fmt.Errorf("latest_quarter must be 1-4, got %d", t.LatestQuarter)
	}
	if t.LatestMonth < 1 || t.LatestMonth > 12 {
		return fmt.Errorf("latest_month must be 1-12, got %d", t.LatestMonth)
	}
	if t.LatestDate != "" {
		if _, err := time.Parse("2006-01-02", t.LatestDate); err != nil {
			return fmt.Errorf("latest_date must be YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

// EffectiveLatestDate returns LatestDate, or the last day of the latest month.
func (t TemporalContext) EffectiveLatestDate() string {
	if t.LatestDate != "" {
		return t.LatestDate
	}
	last := time.Date(t.LatestYear, time.Month(t.LatestMonth)+1, 0, 0, 0, 0, 0, time.UTC)
	return last.Format("2006-01-02")
}

// Statements renders the context as explicit facts for the prompt, in a fixed order.
func (t TemporalContext) Statements() []string {
	years := make([]string, len(t.AvailableYears))
	for i, y := range t.AvailableYears {
		years[i] = strconv.Itoa(y)
	}
	latestDate := t.EffectiveLatestDate()

	return []string{
		fmt.Sprintf("Available years = %s", strings.Join(years, ", ")),
		fmt.Sprintf("Latest year = %d", t.LatestYear),
		fmt.Sprintf("Latest quarter = Q%d %d", t.LatestQuarter, t.LatestYear),
		fmt.Sprintf("Latest month = %d-%02d", t.LatestYear, t.LatestMonth),
		fmt.Sprintf("Latest date = %s", latestDate),
		fmt.Sprintf(`"current" or "latest" means year = %d AND quarter = %d`, t.LatestYear, t.LatestQuarter),
		fmt.Sprintf(`"last N days/months" is measured back from CAST('%s' AS DATE), never from the system clock`, latestDate),
	}
}
