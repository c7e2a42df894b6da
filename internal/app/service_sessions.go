package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"parley/api/internal/access"
	"parley/api/internal/export"
	"parley/api/internal/search"
	"parley/api/internal/store"
	"parley/api/internal/util"
)

var allowedMessageRoles = map[string]struct{}{
	"user":      {},
	"assistant": {},
	"system":    {},
}

// sessionLevel computes the caller's effective level on a chat session. The
// per-user share grant, if any, feeds the resolver alongside ownership and
// the public visibility floor.
func (s *Service) sessionLevel(ctx context.Context, chat store.ChatSession, session Session) (access.Level, error) {
	grant := access.LevelNone
	if !session.Anonymous() && session.UserID != chat.OwnerID {
		share, err := s.store.GetSessionShare(ctx, chat.ID, session.UserID)
		switch {
		case err == nil:
			grant = access.Level(share.Permission)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return access.LevelNone, err
		}
	}
	return access.Resolve(chat.OwnerID, session.UserID, grant, access.Visibility(chat.Visibility)), nil
}

// requireChat loads a session and enforces action. Callers without read
// access get a 404 rather than a 403 so private sessions stay unobservable.
func (s *Service) requireChat(ctx context.Context, session Session, sessionID string, action access.Action) (store.ChatSession, access.Level, error) {
	chat, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return store.ChatSession{}, access.LevelNone, err
	}
	level, err := s.sessionLevel(ctx, chat, session)
	if err != nil {
		return store.ChatSession{}, access.LevelNone, err
	}
	if !access.Can(level, access.ActionRead) {
		return store.ChatSession{}, access.LevelNone, notFound()
	}
	if !access.Can(level, action) {
		return store.ChatSession{}, access.LevelNone, forbidden()
	}
	return chat, level, nil
}

// sessionPayload shapes a chat session for API responses. The share token is
// only ever included for the owner.
func sessionPayload(chat store.ChatSession, level access.Level) map[string]any {
	payload := map[string]any{
		"id":            chat.ID,
		"projectId":     chat.ProjectID,
		"ownerId":       chat.OwnerID,
		"title":         chat.Title,
		"visibility":    chat.Visibility,
		"messageCount":  chat.MessageCount,
		"lastMessageAt": chat.LastMessageAt,
		"permission":    string(level),
		"createdAt":     chat.CreatedAt,
		"updatedAt":     chat.UpdatedAt,
	}
	if level == access.LevelOwner && chat.ShareToken != nil {
		payload["shareToken"] = *chat.ShareToken
	}
	return payload
}

func messagePayload(message store.Message) map[string]any {
	item := map[string]any{
		"id":        message.ID,
		"sessionId": message.SessionID,
		"index":     message.MessageIndex,
		"role":      message.Role,
		"body":      message.Body,
		"createdAt": message.CreatedAt,
	}
	if message.AuthorID != nil {
		item["authorId"] = *message.AuthorID
	} else {
		item["authorId"] = nil
	}
	return item
}

func (s *Service) CreateChatSession(ctx context.Context, session Session, projectID, title string) (map[string]any, error) {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled session"
	}

	chat := store.ChatSession{
		ID:        util.NewID("ses"),
		ProjectID: projectID,
		OwnerID:   session.UserID,
		Title:     title,
	}
	if err := s.store.CreateSession(ctx, chat); err != nil {
		return nil, err
	}
	created, err := s.store.GetSession(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, actorRef(session), "session.created", "session", created.ID, map[string]any{"projectId": projectID})
	return sessionPayload(created, access.LevelOwner), nil
}

func (s *Service) GetChatSession(ctx context.Context, session Session, sessionID string) (map[string]any, error) {
	chat, level, err := s.requireChat(ctx, session, sessionID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	return sessionPayload(chat, level), nil
}

func (s *Service) RenameChatSession(ctx context.Context, session Session, sessionID, title string) (map[string]any, error) {
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}
	if err := s.store.UpdateSessionTitle(ctx, sessionID, title); err != nil {
		return nil, err
	}
	updated, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if updated.Visibility == string(access.VisibilityPublic) && s.search != nil {
		s.search.IndexSession(search.SessionRecord{
			ID:        updated.ID,
			Title:     updated.Title,
			ProjectID: updated.ProjectID,
			OwnerID:   updated.OwnerID,
		})
	}
	return sessionPayload(updated, access.LevelOwner), nil
}

func (s *Service) DeleteChatSession(ctx context.Context, session Session, sessionID string) error {
	chat, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteSession(sessionID)
	}
	s.recordActivity(ctx, actorRef(session), "session.deleted", "session", sessionID, map[string]any{"projectId": chat.ProjectID})
	return nil
}

// ListProjectChatSessions returns the sessions in a project the caller can
// see. Every row passes through the resolver; sessions the caller cannot
// read are dropped rather than redacted.
func (s *Service) ListProjectChatSessions(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionRead); err != nil {
		return nil, err
	}
	chats, err := s.store.ListProjectSessions(ctx, projectID, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(chats))
	for _, chat := range chats {
		level := access.Resolve(chat.OwnerID, session.UserID, access.Level(chat.ViewerGrant), access.Visibility(chat.Visibility))
		if !access.Can(level, access.ActionRead) {
			continue
		}
		items = append(items, sessionPayload(chat, level))
	}
	return map[string]any{"sessions": items}, nil
}

// ListPublicChatSessions is the anonymous-safe discovery listing.
func (s *Service) ListPublicChatSessions(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	chats, err := s.store.ListPublicSessions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(chats))
	for _, chat := range chats {
		level := access.LevelView
		if !session.Anonymous() && session.UserID == chat.OwnerID {
			level = access.LevelOwner
		}
		items = append(items, sessionPayload(chat, level))
	}
	return map[string]any{
		"sessions": items,
		"hasMore":  len(chats) == limit,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

func (s *Service) ListSessionsSharedWithMe(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	chats, err := s.store.ListSharedSessions(ctx, session.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(chats))
	for _, chat := range chats {
		items = append(items, sessionPayload(chat, access.Level(chat.ViewerGrant)))
	}
	return map[string]any{
		"sessions": items,
		"hasMore":  len(chats) == limit,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

// EffectivePermission reports what the caller can do with a session. Callers
// who resolve to no access get a 404, the same as a nonexistent session.
func (s *Service) EffectivePermission(ctx context.Context, session Session, sessionID string) (map[string]any, error) {
	chat, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	level, err := s.sessionLevel(ctx, chat, session)
	if err != nil {
		return nil, err
	}
	if !access.Can(level, access.ActionRead) {
		return nil, notFound()
	}
	return map[string]any{
		"sessionId":  chat.ID,
		"permission": string(level),
		"canRead":    true,
		"canComment": access.Can(level, access.ActionComment),
		"canWrite":   access.Can(level, access.ActionWrite),
		"canManage":  access.Can(level, access.ActionManage),
	}, nil
}

func (s *Service) SetChatVisibility(ctx context.Context, session Session, sessionID, visibility string) (map[string]any, error) {
	if !access.ValidVisibility(visibility) {
		return nil, validationError("visibility must be private, shared, or public", map[string]any{"visibility": visibility})
	}
	chat, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.SetSessionVisibility(ctx, sessionID, visibility)
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		if updated.Visibility == string(access.VisibilityPublic) {
			s.search.IndexSession(search.SessionRecord{
				ID:        updated.ID,
				Title:     updated.Title,
				ProjectID: updated.ProjectID,
				OwnerID:   updated.OwnerID,
			})
		} else if chat.Visibility == string(access.VisibilityPublic) {
			s.search.DeleteSession(updated.ID)
		}
	}

	s.recordActivity(ctx, actorRef(session), "session.visibility_changed", "session", sessionID, map[string]any{
		"from": chat.Visibility,
		"to":   updated.Visibility,
	})
	return sessionPayload(updated, access.LevelOwner), nil
}

func (s *Service) ShareChatSession(ctx context.Context, session Session, sessionID, username, permission string) (map[string]any, error) {
	if !access.ValidSharePermission(permission) {
		return nil, validationError("permission must be view or comment", map[string]any{"permission": permission})
	}
	chat, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage)
	if err != nil {
		return nil, err
	}

	target, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(404, "NOT_FOUND", "User not found", nil)
		}
		return nil, err
	}
	if target.ID == chat.OwnerID {
		return nil, validationError("a session cannot be shared with its owner", nil)
	}

	share, err := s.store.UpsertSessionShare(ctx, store.SessionShare{
		ID:               util.NewID("shr"),
		SessionID:        sessionID,
		SharedWithUserID: target.ID,
		SharedByUserID:   session.UserID,
		Permission:       permission,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actorRef(session), "session.shared", "session", sessionID, map[string]any{
		"userId":     target.ID,
		"permission": permission,
	})
	return map[string]any{
		"sessionId":  share.SessionID,
		"userId":     target.ID,
		"username":   target.Username,
		"permission": share.Permission,
		"createdAt":  share.CreatedAt,
	}, nil
}

func (s *Service) RevokeChatShare(ctx context.Context, session Session, sessionID, userID string) error {
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage); err != nil {
		return err
	}
	removed, err := s.store.DeleteSessionShare(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return notFound()
	}
	s.recordActivity(ctx, actorRef(session), "session.unshared", "session", sessionID, map[string]any{"userId": userID})
	return nil
}

func (s *Service) ListChatShares(ctx context.Context, session Session, sessionID string) (map[string]any, error) {
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage); err != nil {
		return nil, err
	}
	shares, err := s.store.ListSessionShares(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(shares))
	for _, share := range shares {
		items = append(items, map[string]any{
			"userId":     share.SharedWithUserID,
			"username":   share.SharedWithUsername,
			"permission": share.Permission,
			"sharedBy":   share.SharedByUserID,
			"createdAt":  share.CreatedAt,
		})
	}
	return map[string]any{"shares": items}, nil
}

// AppendChatMessage adds a message to the transcript. User messages need
// comment access; assistant and system entries need write access.
func (s *Service) AppendChatMessage(ctx context.Context, session Session, sessionID, role, body string) (map[string]any, error) {
	if _, ok := allowedMessageRoles[role]; !ok {
		return nil, validationError("role must be user, assistant, or system", map[string]any{"role": role})
	}
	if strings.TrimSpace(body) == "" {
		return nil, validationError("body is required", nil)
	}

	required := access.ActionWrite
	if role == "user" {
		required = access.ActionComment
	}
	if _, _, err := s.requireChat(ctx, session, sessionID, required); err != nil {
		return nil, err
	}

	message := store.Message{
		ID:        util.NewID("msg"),
		SessionID: sessionID,
		Role:      role,
		Body:      body,
	}
	if role == "user" && !session.Anonymous() {
		authorID := session.UserID
		message.AuthorID = &authorID
	}

	appended, err := s.store.AppendMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	return messagePayload(appended), nil
}

func (s *Service) ListChatMessages(ctx context.Context, session Session, sessionID string, limit, offset int) (map[string]any, error) {
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionRead); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	messages, err := s.store.ListMessages(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messagePayload(message))
	}
	return map[string]any{
		"messages": items,
		"hasMore":  len(messages) == limit,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

// ResolveShareToken resolves a share link against non-private sessions, then
// projects. Unknown and stale tokens are indistinguishable from each other.
func (s *Service) ResolveShareToken(ctx context.Context, session Session, token string) (map[string]any, error) {
	chat, err := s.store.GetSessionByToken(ctx, token)
	if err == nil {
		messages, err := s.store.ListMessages(ctx, chat.ID, 200, 0)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]any, 0, len(messages))
		for _, message := range messages {
			items = append(items, messagePayload(message))
		}
		s.recordActivity(ctx, actorRef(session), "share_link.accessed", "session", chat.ID, nil)
		return map[string]any{
			"type":     "session",
			"session":  sessionPayload(chat, access.LevelView),
			"messages": items,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	project, err := s.store.GetProjectByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, actorRef(session), "share_link.accessed", "project", project.ID, nil)
	return map[string]any{
		"type":    "project",
		"project": projectPayload(project, access.LevelView),
	}, nil
}

func (s *Service) ChatActivity(ctx context.Context, session Session, sessionID string, limit int) (map[string]any, error) {
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionManage); err != nil {
		return nil, err
	}
	entries, err := s.store.ListActivity(ctx, "session", sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return map[string]any{"activity": activityPayload(entries)}, nil
}

// ExportChatSession renders the transcript to PDF or DOCX. The result is also
// archived to object storage when an archive bucket is configured.
func (s *Service) ExportChatSession(ctx context.Context, session Session, sessionID, format string) (*export.Result, error) {
	if format != string(export.FormatPDF) && format != string(export.FormatDOCX) {
		return nil, validationError("format must be pdf or docx", map[string]any{"format": format})
	}
	if _, _, err := s.requireChat(ctx, session, sessionID, access.ActionRead); err != nil {
		return nil, err
	}

	result, err := s.exporter.Export(ctx, export.Request{
		SessionID: sessionID,
		Format:    export.Format(format),
	})
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		s.archive.Store(sessionID, result.Filename, result.MimeType, result.Data)
	}
	s.recordActivity(ctx, actorRef(session), "session.exported", "session", sessionID, map[string]any{"format": format})
	return result, nil
}

// SearchPublic queries the public search index. Results only ever contain
// public resources, so no per-result authorization pass is needed.
func (s *Service) SearchPublic(text, filterType string, limit, offset int) map[string]any {
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": text}
	}
	response := s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		Limit:      clampLimit(limit),
		Offset:     offset,
	})
	return map[string]any{
		"results": response.Results,
		"total":   response.Total,
		"query":   response.Query,
	}
}
