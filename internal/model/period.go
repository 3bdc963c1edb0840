package model

import (
	"fmt"
	"time"
)

// EvaluationPeriod is the single active inclusive date range evaluations are
// scored over. From and To are plain YYYY-MM-DD calendar dates.
type EvaluationPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PeriodDoc is the stored shape of the singleton period document: the store
// keeps native timestamps, readers work with calendar dates.
type PeriodDoc struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewPeriodDoc builds the stored document from calendar dates. Dates parse
// at local midnight so CalendarPeriod recovers the same dates whatever
// timezone the process runs in.
func NewPeriodDoc(from, to string) (PeriodDoc, error) {
	const layout = "2006-01-02"
	f, err := time.ParseInLocation(layout, from, time.Local)
	if err != nil {
		return PeriodDoc{}, fmt.Errorf("invalid start date %q: %w", from, err)
	}
	t, err := time.ParseInLocation(layout, to, time.Local)
	if err != nil {
		return PeriodDoc{}, fmt.Errorf("invalid end date %q: %w", to, err)
	}
	return PeriodDoc{From: f, To: t}, nil
}

// CalendarPeriod converts the stored timestamps to calendar dates using
// local year/month/day components. Formatting an instant as UTC ISO instead
// would shift the date across midnight for viewers behind UTC.
func (d PeriodDoc) CalendarPeriod() EvaluationPeriod {
	return EvaluationPeriod{From: calendarDate(d.From), To: calendarDate(d.To)}
}

func calendarDate(t time.Time) string {
	l := t.Local()
	return fmt.Sprintf("%04d-%02d-%02d", l.Year(), int(l.Month()), l.Day())
}
