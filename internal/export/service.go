package export

import (
	"context"
	"fmt"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetSessionInfo(ctx context.Context, sessionID string) (SessionInfo, error)
	ListTranscript(ctx context.Context, sessionID string) ([]MessageInfo, error)
}

// Service provides transcript export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates a transcript export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	info, err := s.store.GetSessionInfo(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	messages, err := s.store.ListTranscript(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}

	data := TemplateData{
		Title:       info.Title,
		ProjectName: info.ProjectName,
		OwnerName:   info.OwnerName,
		UpdatedAt:   info.UpdatedAt,
		Messages:    make([]TemplateMessage, 0, len(messages)),
	}
	for _, m := range messages {
		data.Messages = append(data.Messages, TemplateMessage{
			Index:  m.Index,
			Role:   m.Role,
			Author: m.Author,
			Body:   m.Body,
			SentAt: m.CreatedAt,
		})
	}

	html, err := RenderTranscriptHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, info.Title)
	case FormatDOCX:
		return exportDOCX(html, info.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
