package entity

import "time"

type FileStatus string

const (
	StatusUploaded   FileStatus = "uploaded"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusFailed     FileStatus = "failed"
)

type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Mode selects how much work the conversion engine does:
// fast skips OCR and table structure, balanced adds fast table structure,
// accurate turns on OCR and high-fidelity tables.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeBalanced Mode = "balanced"
	ModeAccurate Mode = "accurate"
)

// ParseMode validates a caller-supplied mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFast, ModeBalanced, ModeAccurate:
		return Mode(s), true
	}
	return "", false
}

// FileRecord tracks one uploaded document through its lifecycle:
// uploaded -> processing -> completed|failed.
type FileRecord struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OriginalFilename string     `json:"original_filename"`
	Status           FileStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ConversionJob records the outcome of one finished conversion attempt.
// A row exists only for finished attempts; in-flight work is visible only
// through the FileRecord status.
type ConversionJob struct {
	ID           string    `json:"id"`
	FileID       string    `json:"file_id"`
	Status       JobStatus `json:"status"`
	Result       string    `json:"result,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
