package model

// EvaluationControls is the global kill-switch for evaluation saves.
// A missing controls document means saving is enabled.
type EvaluationControls struct {
	SaveEnabled bool `json:"saveEnabled"`
}
