package model

import "time"

// HistoryExport is the top-level JSON structure for history export.
type HistoryExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Storage    string          `json:"storage"`
	Attempts   int             `json:"attempts"`
	Results    []AttemptExport `json:"results"`
}

// AttemptExport holds one finished attempt for export.
type AttemptExport struct {
	ID              string    `json:"id"`
	Quiz            string    `json:"quiz"`
	Slug            string    `json:"slug"`
	Raw             int       `json:"raw"`
	Scaled          int       `json:"scaled"`
	Passed          bool      `json:"passed"`
	Answered        int       `json:"answered"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// NewAttemptExport flattens a history entry.
func NewAttemptExport(e HistoryEntry) AttemptExport {
	return AttemptExport{
		ID:              e.ID,
		Quiz:            e.Quiz.Name,
		Slug:            e.Quiz.Slug,
		Raw:             e.Raw,
		Scaled:          e.Scaled,
		Passed:          e.Passed(),
		Answered:        len(e.Answers),
		FinishedAt:      e.Date,
		DurationSeconds: e.Duration,
	}
}
