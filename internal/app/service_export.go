package app

import (
	"context"

	"parley/api/internal/export"
)

// exportAdapter feeds the export renderer from the primary store.
type exportAdapter struct {
	store dataStore
}

func (a *exportAdapter) GetSessionInfo(ctx context.Context, sessionID string) (export.SessionInfo, error) {
	chat, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return export.SessionInfo{}, err
	}
	project, err := a.store.GetProject(ctx, chat.ProjectID)
	if err != nil {
		return export.SessionInfo{}, err
	}
	owner, err := a.store.GetUserByID(ctx, chat.OwnerID)
	if err != nil {
		return export.SessionInfo{}, err
	}
	return export.SessionInfo{
		ID:           chat.ID,
		Title:        chat.Title,
		ProjectName:  project.Name,
		OwnerName:    owner.DisplayName,
		MessageCount: chat.MessageCount,
		UpdatedAt:    chat.UpdatedAt,
	}, nil
}

// exportTranscriptLimit bounds a single export. Sessions longer than this are
// truncated rather than rejected.
const exportTranscriptLimit = 10000

func (a *exportAdapter) ListTranscript(ctx context.Context, sessionID string) ([]export.MessageInfo, error) {
	messages, err := a.store.ListMessages(ctx, sessionID, exportTranscriptLimit, 0)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	items := make([]export.MessageInfo, 0, len(messages))
	for _, message := range messages {
		author := ""
		if message.AuthorID != nil {
			name, ok := names[*message.AuthorID]
			if !ok {
				user, err := a.store.GetUserByID(ctx, *message.AuthorID)
				if err == nil {
					name = user.DisplayName
				}
				names[*message.AuthorID] = name
			}
			author = name
		}
		items = append(items, export.MessageInfo{
			Index:     message.MessageIndex,
			Role:      message.Role,
			Author:    author,
			Body:      message.Body,
			CreatedAt: message.CreatedAt,
		})
	}
	return items, nil
}
