// Package scoring turns raw evaluation entries into shortfalls and monetary
// penalties. Everything here is a pure function over in-memory snapshots:
// no clock, no store access, so identical inputs always score identically.
package scoring

import (
	"math"
	"time"

	"github.com/dukerupert/mizan/internal/model"
)

// DailyTarget is the per-day ceiling for numeric items: a recorded value
// below it contributes the gap to the shortfall. Carried over from observed
// behavior, not a confirmed business rule.
const DailyTarget = 10

type ItemSummary struct {
	ItemName       string  `json:"itemName"`
	TotalShortfall float64 `json:"totalShortfall"`
	Penalty        float64 `json:"penalty"`
}

type Summary struct {
	Items []ItemSummary `json:"items"`
	Total float64       `json:"total"`
}

type MemberTotal struct {
	UserID       string  `json:"userId"`
	FullName     string  `json:"fullName"`
	TotalPenalty float64 `json:"totalPenalty"`
}

// Report is the family-level rollup: each member's total penalty plus the
// family grand total.
type Report struct {
	Members []MemberTotal `json:"members"`
	Total   float64       `json:"total"`
}

const dateLayout = "2006-01-02"

// DatesInRange expands an inclusive YYYY-MM-DD range into every calendar
// date it covers. Dates are interpreted in UTC so the enumeration can never
// drift across a timezone boundary. An unparsable or empty range is empty.
func DatesInRange(from, to string) []string {
	start, err := time.ParseInLocation(dateLayout, from, time.UTC)
	if err != nil {
		return nil
	}
	end, err := time.ParseInLocation(dateLayout, to, time.UTC)
	if err != nil {
		return nil
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates
}

// Score computes the per-item shortfall and penalty for one user over the
// active period. Missing entries never raise; they score as misses (boolean,
// one-time) or as zero (numeric). A nil period scores as empty.
func Score(uid string, period *model.EvaluationPeriod, items []model.EvaluationItem, entries []model.EvaluationEntry) Summary {
	summary := Summary{Items: make([]ItemSummary, 0, len(items))}
	if period == nil {
		return summary
	}

	dates := DatesInRange(period.From, period.To)

	// Index the user's entries by (item, date). First match wins so stray
	// duplicates cannot make the result order-dependent.
	byItemDate := make(map[[2]string]model.Value)
	for _, e := range entries {
		if e.UserID != uid {
			continue
		}
		key := [2]string{e.ItemID, e.Date}
		if _, ok := byItemDate[key]; !ok {
			byItemDate[key] = e.Value
		}
	}

	for _, item := range items {
		var shortfall float64

		switch item.Type {
		case model.ItemTypeBoolDaily:
			for _, date := range dates {
				v, ok := byItemDate[[2]string{item.ID, date}]
				if !ok || !v.IsYes() {
					shortfall++
				}
			}
		case model.ItemTypeNumericDaily:
			for _, date := range dates {
				v := byItemDate[[2]string{item.ID, date}].Float()
				if v < DailyTarget {
					shortfall += DailyTarget - v
				}
			}
		case model.ItemTypeOneTime:
			// Scored exactly once, at the period's start date.
			v, ok := byItemDate[[2]string{item.ID, period.From}]
			if !ok || !v.IsYes() {
				shortfall = 1
			}
		}

		penalty := shortfall * item.Price
		summary.Items = append(summary.Items, ItemSummary{
			ItemName:       item.ItemName,
			TotalShortfall: shortfall,
			Penalty:        penalty,
		})
		summary.Total += penalty
	}

	return summary
}

// FamilyReport scores every member with the same engine the per-user view
// uses and sums the totals into a family grand total.
func FamilyReport(members []model.User, period *model.EvaluationPeriod, items []model.EvaluationItem, entries []model.EvaluationEntry) Report {
	report := Report{Members: make([]MemberTotal, 0, len(members))}
	for _, m := range members {
		summary := Score(m.UID, period, items, entries)
		report.Members = append(report.Members, MemberTotal{
			UserID:       m.UID,
			FullName:     m.FullName,
			TotalPenalty: summary.Total,
		})
		report.Total += summary.Total
	}
	return report
}

// DisplayAmount rounds an accumulated amount to the nearest whole unit.
// Rounding happens only here, at presentation time; the engine itself
// accumulates unrounded values.
func DisplayAmount(x float64) int {
	return int(math.Round(x))
}
