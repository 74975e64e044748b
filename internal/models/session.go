package models

// SessionStatus represents the status of an import session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// ImportSession represents the conversion of one uploaded log file.
type ImportSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	FileName         string        `json:"fileName,omitempty"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	LineCount        int           `json:"lineCount,omitempty"`
	SkippedLines     int           `json:"skippedLines,omitempty"`
	ReportIDs        []string      `json:"reportIds"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	ConverterName    string        `json:"converterName,omitempty"`
	Errors           []ParseError  `json:"errors,omitempty"`
}

// ParseError represents an error encountered during conversion.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// NewImportSession creates a new ImportSession in pending status.
func NewImportSession(id, fileID string) *ImportSession {
	return &ImportSession{
		ID:        id,
		FileID:    fileID,
		Status:    SessionStatusPending,
		Progress:  0,
		ReportIDs: make([]string, 0),
		Errors:    make([]ParseError, 0),
	}
}

// Clone returns a copy that is safe to hand out while the session keeps changing.
func (s *ImportSession) Clone() *ImportSession {
	c := *s
	c.ReportIDs = make([]string, len(s.ReportIDs))
	copy(c.ReportIDs, s.ReportIDs)
	c.Errors = append([]ParseError(nil), s.Errors...)
	return &c
}
