package sync

import (
	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/model"
)

// Snapshot is the viewer-scoped in-memory view of the shared collections.
// The manager owns it; everything handed out is a copy.
type Snapshot struct {
	Families []model.Family           `json:"families"`
	Items    []model.EvaluationItem   `json:"items"`
	Period   *model.EvaluationPeriod  `json:"period"`
	Controls model.EvaluationControls `json:"controls"`
	Users    []model.User             `json:"users"`
	Entries  []model.EvaluationEntry  `json:"entries"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Families = append([]model.Family(nil), s.Families...)
	out.Items = append([]model.EvaluationItem(nil), s.Items...)
	out.Users = append([]model.User(nil), s.Users...)
	out.Entries = append([]model.EvaluationEntry(nil), s.Entries...)
	if s.Period != nil {
		p := *s.Period
		out.Period = &p
	}
	return out
}

func decodeFamilies(docs []docstore.Document) ([]model.Family, error) {
	out := make([]model.Family, 0, len(docs))
	for _, doc := range docs {
		var f model.Family
		if err := doc.Decode(&f); err != nil {
			return nil, err
		}
		f.ID = doc.ID
		out = append(out, f)
	}
	return out, nil
}

func decodeItems(docs []docstore.Document) ([]model.EvaluationItem, error) {
	out := make([]model.EvaluationItem, 0, len(docs))
	for _, doc := range docs {
		var it model.EvaluationItem
		if err := doc.Decode(&it); err != nil {
			return nil, err
		}
		it.ID = doc.ID
		out = append(out, it)
	}
	return out, nil
}

func decodeUsers(docs []docstore.Document) ([]model.User, error) {
	out := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		var u model.User
		if err := doc.Decode(&u); err != nil {
			return nil, err
		}
		u.ID = doc.ID
		out = append(out, u)
	}
	return out, nil
}

func decodeEntries(docs []docstore.Document) ([]model.EvaluationEntry, error) {
	out := make([]model.EvaluationEntry, 0, len(docs))
	for _, doc := range docs {
		var e model.EvaluationEntry
		if err := doc.Decode(&e); err != nil {
			return nil, err
		}
		e.ID = doc.ID
		out = append(out, e)
	}
	return out, nil
}

func decodePeriod(doc *docstore.Document) (*model.EvaluationPeriod, error) {
	if doc == nil {
		return nil, nil
	}
	var pd model.PeriodDoc
	if err := doc.Decode(&pd); err != nil {
		return nil, err
	}
	p := pd.CalendarPeriod()
	return &p, nil
}

func decodeControls(doc *docstore.Document) (model.EvaluationControls, error) {
	if doc == nil {
		// Absent controls mean saving is enabled; consumers never need a
		// second null check.
		return model.EvaluationControls{SaveEnabled: true}, nil
	}
	var c model.EvaluationControls
	if err := doc.Decode(&c); err != nil {
		return model.EvaluationControls{}, err
	}
	return c, nil
}
