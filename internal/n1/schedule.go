// Package n1 builds rent-increase schedules and renders the N1 notices
// sent to lease holders. The increase policy is deliberately simple: a
// flat percentage effective after a notice period.
package n1

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/leasehook/internal/upstream"
)

const dateLayout = "2006-01-02"

// Schedule is one lease's planned increase.
type Schedule struct {
	LeaseID         string  `json:"lease_id"`
	PropertyID      string  `json:"property_id,omitempty"`
	UnitID          string  `json:"unit_id,omitempty"`
	TenantName      string  `json:"tenant_name"`
	CurrentRent     float64 `json:"current_rent"`
	NewRent         float64 `json:"new_rent"`
	IncreasePercent float64 `json:"increase_percent"`
	NoticeDate      string  `json:"notice_date"`
	EffectiveDate   string  `json:"effective_date"`
	GLAccountID     string  `json:"gl_account_id,omitempty"`
}

// Increase returns the monthly rent difference.
func (s Schedule) Increase() float64 {
	return roundCents(s.NewRent - s.CurrentRent)
}

// FlatIncrease applies Percent to every lease with a positive rent.
type FlatIncrease struct {
	Percent    float64
	NoticeDays int
}

// Build returns schedules sorted by lease id. Leases without rent are
// skipped. The effective date is the later of the day after the lease end
// and now plus the notice period.
func (f FlatIncrease) Build(leases []upstream.Lease, glAccountID string, now time.Time) ([]Schedule, error) {
	if f.Percent <= 0 {
		return nil, fmt.Errorf("increase percent must be positive")
	}
	notice := now.UTC().Truncate(24 * time.Hour)
	earliest := notice.AddDate(0, 0, f.NoticeDays)

	out := make([]Schedule, 0, len(leases))
	for _, lease := range leases {
		if lease.Rent <= 0 || strings.TrimSpace(lease.ID) == "" {
			continue
		}
		effective := earliest
		if end := strings.TrimSpace(lease.EndDate); end != "" {
			t, err := time.Parse(dateLayout, end[:min(len(end), len(dateLayout))])
			if err != nil {
				return nil, fmt.Errorf("lease %s: invalid end date %q", lease.ID, lease.EndDate)
			}
			if next := t.AddDate(0, 0, 1); next.After(effective) {
				effective = next
			}
		}
		out = append(out, Schedule{
			LeaseID:         lease.ID,
			PropertyID:      lease.PropertyID,
			UnitID:          lease.UnitID,
			TenantName:      lease.TenantName,
			CurrentRent:     roundCents(lease.Rent),
			NewRent:         roundCents(lease.Rent * (1 + f.Percent/100)),
			IncreasePercent: f.Percent,
			NoticeDate:      notice.Format(dateLayout),
			EffectiveDate:   effective.Format(dateLayout),
			GLAccountID:     glAccountID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaseID < out[j].LeaseID })
	return out, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
