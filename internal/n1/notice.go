package n1

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"text/template"

	"github.com/mattjoyce/leasehook/internal/upstream"
)

var noticeTemplate = template.Must(template.New("n1").Parse(`NOTICE OF RENT INCREASE (N1)

To: {{.TenantName}}
Lease: {{.LeaseID}}{{if .UnitID}}
Unit: {{.UnitID}}{{end}}
Date of notice: {{.NoticeDate}}

Your rent will increase from {{printf "%.2f" .CurrentRent}} to {{printf "%.2f" .NewRent}}
({{printf "%.2f" .IncreasePercent}}%) effective {{.EffectiveDate}}.
`))

// RenderNotice renders the tenant-facing notice for one schedule.
func RenderNotice(s Schedule) (upstream.Document, error) {
	var buf bytes.Buffer
	if err := noticeTemplate.Execute(&buf, s); err != nil {
		return upstream.Document{}, fmt.Errorf("render notice for lease %s: %w", s.LeaseID, err)
	}
	return upstream.Document{
		Title:       "N1 Notice of Rent Increase",
		FileName:    fmt.Sprintf("n1-%s-%s.txt", s.LeaseID, s.EffectiveDate),
		ContentType: "text/plain; charset=utf-8",
		Content:     buf.Bytes(),
	}, nil
}

// SummaryFileName is the name recorded for a summary of schedules prepared on date.
func SummaryFileName(date string) string {
	return "n1-summary-" + date + ".csv"
}

// RenderSummary renders all schedules as CSV.
func RenderSummary(schedules []Schedule, date string) (upstream.Document, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{{"lease_id", "tenant_name", "current_rent", "new_rent", "increase", "effective_date", "gl_account_id"}}
	for _, s := range schedules {
		rows = append(rows, []string{
			s.LeaseID,
			s.TenantName,
			strconv.FormatFloat(s.CurrentRent, 'f', 2, 64),
			strconv.FormatFloat(s.NewRent, 'f', 2, 64),
			strconv.FormatFloat(s.Increase(), 'f', 2, 64),
			s.EffectiveDate,
			s.GLAccountID,
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return upstream.Document{}, fmt.Errorf("render summary: %w", err)
	}
	return upstream.Document{
		Title:       "N1 Rent Increase Summary",
		FileName:    SummaryFileName(date),
		ContentType: "text/csv",
		Content:     buf.Bytes(),
	}, nil
}
