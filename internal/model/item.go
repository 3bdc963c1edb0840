package model

type ItemType string

const (
	// ItemTypeBoolDaily is scored per day as a yes/no check.
	ItemTypeBoolDaily ItemType = "boolean_daily"
	// ItemTypeNumericDaily is scored per day against a numeric target.
	ItemTypeNumericDaily ItemType = "numeric_daily"
	// ItemTypeOneTime is scored exactly once, at the period's start date.
	ItemTypeOneTime ItemType = "one_time"
)

// ValidItemType reports whether t is one of the known item types.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemTypeBoolDaily, ItemTypeNumericDaily, ItemTypeOneTime:
		return true
	}
	return false
}

// EvaluationItem defines one scored line: the shape of its input value and
// the unit price applied to its shortfall.
type EvaluationItem struct {
	ID       string   `json:"id"`
	ItemName string   `json:"itemName"`
	Type     ItemType `json:"itemType"`
	Price    float64  `json:"price"`
}
