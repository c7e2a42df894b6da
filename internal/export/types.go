// Package export provides transcript export functionality for PDF and DOCX formats.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	SessionID string
	Format    Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// SessionInfo holds session metadata for export
type SessionInfo struct {
	ID           string
	Title        string
	ProjectName  string
	OwnerName    string
	MessageCount int
	UpdatedAt    time.Time
}

// MessageInfo holds one transcript entry
type MessageInfo struct {
	Index     int
	Role      string
	Author    string
	Body      string
	CreatedAt time.Time
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
