package model

import (
	"encoding/json"
	"fmt"
)

// Value is an evaluation entry's recorded value: the string "Y" or "N" for
// boolean and one-time items, or a number for numeric items. It marshals to
// exactly those JSON shapes so documents stay interchangeable with what the
// forms submit.
type Value struct {
	num   float64
	str   string
	isNum bool
}

func Yes() Value             { return Value{str: "Y"} }
func No() Value              { return Value{str: "N"} }
func Number(n float64) Value { return Value{num: n, isNum: true} }

// IsYes reports whether the value is the literal "Y".
func (v Value) IsYes() bool { return !v.isNum && v.str == "Y" }

// IsNumber reports whether the value carries a number.
func (v Value) IsNumber() bool { return v.isNum }

// Float returns the numeric value, or 0 for "Y"/"N" values. Missing and
// non-numeric values both score as zero, so callers never need to branch.
func (v Value) Float() float64 {
	if v.isNum {
		return v.num
	}
	return 0
}

func (v Value) String() string {
	if v.isNum {
		return fmt.Sprintf("%g", v.num)
	}
	return v.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Y" && s != "N" {
			return fmt.Errorf("invalid evaluation value %q", s)
		}
		*v = Value{str: s}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid evaluation value: %s", data)
	}
	*v = Value{num: n, isNum: true}
	return nil
}

// EvaluationEntry is one submitted evaluation. Its logical identity is the
// (UserID, ItemID, Date) triple; the writer guarantees no two documents share
// one. UserID holds the user's UID, not the user document key.
type EvaluationEntry struct {
	ID       string `json:"id"`
	FamilyID string `json:"familyId"`
	UserID   string `json:"userId"`
	ItemID   string `json:"itemId"`
	Date     string `json:"date"`
	Value    Value  `json:"value"`
}
