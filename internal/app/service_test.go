package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"parley/api/internal/authpw"
	"parley/api/internal/config"
	"parley/api/internal/export"
	"parley/api/internal/store"
	"parley/api/internal/util"
)

type refreshRecord struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// fakeStore is an in-memory dataStore. Function fields override individual
// methods for error injection.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]store.User
	usersByName   map[string]string
	projects      map[string]store.Project
	collaborators map[string]store.ProjectCollaborator
	sessions      map[string]store.ChatSession
	shares        map[string]store.SessionShare
	messages      map[string][]store.Message
	refresh       map[string]refreshRecord
	revokedJTI    map[string]bool
	activity      []store.ActivityEntry

	insertActivityFn func(context.Context, store.ActivityEntry) error
	pingFn           func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]store.User),
		usersByName:   make(map[string]string),
		projects:      make(map[string]store.Project),
		collaborators: make(map[string]store.ProjectCollaborator),
		sessions:      make(map[string]store.ChatSession),
		shares:        make(map[string]store.SessionShare),
		messages:      make(map[string][]store.Message),
		refresh:       make(map[string]refreshRecord),
		revokedJTI:    make(map[string]bool),
	}
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usersByName[username]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.usersByName[user.Username]; exists {
		return store.ErrDuplicate
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	f.usersByName[user.Username] = user.ID
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CountUsers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = refreshRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.refresh[tokenHash]
	if !ok || record.revoked || time.Now().After(record.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	user, ok := f.users[record.userID]
	if !ok || !user.IsActive {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.refresh[tokenHash]
	if ok {
		record.revoked = true
		f.refresh[tokenHash] = record
	}
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTI[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTI[jti], nil
}

func (f *fakeStore) CreateProject(_ context.Context, project store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.projects {
		if existing.OwnerID == project.OwnerID && existing.Name == project.Name {
			return store.ErrDuplicate
		}
	}
	project.Visibility = "private"
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	f.projects[project.ID] = project
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, projectID, name, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	for id, existing := range f.projects {
		if id != projectID && existing.OwnerID == project.OwnerID && existing.Name == name {
			return store.ErrDuplicate
		}
	}
	project.Name = name
	project.Description = description
	project.UpdatedAt = time.Now()
	f.projects[projectID] = project
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, projectID)
	return nil
}

func (f *fakeStore) ListProjectsByOwner(_ context.Context, ownerID string) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Project, 0)
	for _, project := range f.projects {
		if project.OwnerID == ownerID {
			items = append(items, project)
		}
	}
	return items, nil
}

func (f *fakeStore) ListPublicProjects(_ context.Context, limit, offset int) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Project, 0)
	for _, project := range f.projects {
		if project.Visibility == "public" {
			items = append(items, project)
		}
	}
	return page(items, limit, offset), nil
}

func (f *fakeStore) ListSharedProjects(_ context.Context, userID string, limit, offset int) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Project, 0)
	for _, collab := range f.collaborators {
		if collab.UserID != userID {
			continue
		}
		project := f.projects[collab.ProjectID]
		project.ViewerRole = collab.Role
		items = append(items, project)
	}
	return page(items, limit, offset), nil
}

func (f *fakeStore) GetProjectByToken(_ context.Context, token string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, project := range f.projects {
		if project.ShareToken != nil && *project.ShareToken == token && project.Visibility != "private" {
			return project, nil
		}
	}
	return store.Project{}, sql.ErrNoRows
}

func (f *fakeStore) SetProjectVisibility(_ context.Context, projectID, visibility string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	project.Visibility = visibility
	project.ShareToken = fakeNextToken(visibility, project.ShareToken)
	project.UpdatedAt = time.Now()
	f.projects[projectID] = project
	return project, nil
}

func (f *fakeStore) GetProjectCollaborator(_ context.Context, projectID, userID string) (store.ProjectCollaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	collab, ok := f.collaborators[projectID+"/"+userID]
	if !ok {
		return store.ProjectCollaborator{}, sql.ErrNoRows
	}
	return collab, nil
}

func (f *fakeStore) ListProjectCollaborators(_ context.Context, projectID string) ([]store.ProjectCollaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ProjectCollaborator, 0)
	for _, collab := range f.collaborators {
		if collab.ProjectID == projectID {
			collab.Username = f.users[collab.UserID].Username
			collab.DisplayName = f.users[collab.UserID].DisplayName
			items = append(items, collab)
		}
	}
	return items, nil
}

func (f *fakeStore) UpsertProjectCollaborator(_ context.Context, collab store.ProjectCollaborator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	collab.CreatedAt = time.Now()
	f.collaborators[collab.ProjectID+"/"+collab.UserID] = collab
	return nil
}

func (f *fakeStore) DeleteProjectCollaborator(_ context.Context, projectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := projectID + "/" + userID
	if _, ok := f.collaborators[key]; !ok {
		return false, nil
	}
	delete(f.collaborators, key)
	return true, nil
}

func (f *fakeStore) CreateSession(_ context.Context, chat store.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat.Visibility = "private"
	chat.CreatedAt = time.Now()
	chat.UpdatedAt = chat.CreatedAt
	f.sessions[chat.ID] = chat
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, sessionID string) (store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.sessions[sessionID]
	if !ok {
		return store.ChatSession{}, sql.ErrNoRows
	}
	return chat, nil
}

func (f *fakeStore) UpdateSessionTitle(_ context.Context, sessionID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.sessions[sessionID]
	if !ok {
		return sql.ErrNoRows
	}
	chat.Title = title
	chat.UpdatedAt = time.Now()
	f.sessions[sessionID] = chat
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	delete(f.messages, sessionID)
	return nil
}

func (f *fakeStore) ListProjectSessions(_ context.Context, projectID, viewerID string) ([]store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ChatSession, 0)
	for _, chat := range f.sessions {
		if chat.ProjectID != projectID {
			continue
		}
		if share, ok := f.shares[chat.ID+"/"+viewerID]; ok {
			chat.ViewerGrant = share.Permission
		}
		items = append(items, chat)
	}
	return items, nil
}

func (f *fakeStore) ListPublicSessions(_ context.Context, limit, offset int) ([]store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ChatSession, 0)
	for _, chat := range f.sessions {
		if chat.Visibility == "public" {
			items = append(items, chat)
		}
	}
	return page(items, limit, offset), nil
}

func (f *fakeStore) ListSharedSessions(_ context.Context, userID string, limit, offset int) ([]store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ChatSession, 0)
	for _, share := range f.shares {
		if share.SharedWithUserID != userID {
			continue
		}
		chat := f.sessions[share.SessionID]
		chat.ViewerGrant = share.Permission
		items = append(items, chat)
	}
	return page(items, limit, offset), nil
}

func (f *fakeStore) GetSessionByToken(_ context.Context, token string) (store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chat := range f.sessions {
		if chat.ShareToken != nil && *chat.ShareToken == token && chat.Visibility != "private" {
			return chat, nil
		}
	}
	return store.ChatSession{}, sql.ErrNoRows
}

func (f *fakeStore) SetSessionVisibility(_ context.Context, sessionID, visibility string) (store.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.sessions[sessionID]
	if !ok {
		return store.ChatSession{}, sql.ErrNoRows
	}
	chat.Visibility = visibility
	chat.ShareToken = fakeNextToken(visibility, chat.ShareToken)
	chat.UpdatedAt = time.Now()
	f.sessions[sessionID] = chat
	return chat, nil
}

func (f *fakeStore) GetSessionShare(_ context.Context, sessionID, userID string) (store.SessionShare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	share, ok := f.shares[sessionID+"/"+userID]
	if !ok {
		return store.SessionShare{}, sql.ErrNoRows
	}
	return share, nil
}

func (f *fakeStore) UpsertSessionShare(_ context.Context, share store.SessionShare) (store.SessionShare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	share.CreatedAt = time.Now()
	f.shares[share.SessionID+"/"+share.SharedWithUserID] = share
	return share, nil
}

func (f *fakeStore) DeleteSessionShare(_ context.Context, sessionID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + "/" + userID
	if _, ok := f.shares[key]; !ok {
		return false, nil
	}
	delete(f.shares, key)
	return true, nil
}

func (f *fakeStore) ListSessionShares(_ context.Context, sessionID string) ([]store.SessionShare, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.SessionShare, 0)
	for _, share := range f.shares {
		if share.SessionID == sessionID {
			share.SharedWithUsername = f.users[share.SharedWithUserID].Username
			items = append(items, share)
		}
	}
	return items, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, message store.Message) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.sessions[message.SessionID]
	if !ok {
		return store.Message{}, sql.ErrNoRows
	}
	chat.MessageCount++
	now := time.Now()
	chat.LastMessageAt = &now
	chat.UpdatedAt = now
	f.sessions[message.SessionID] = chat

	message.MessageIndex = chat.MessageCount
	message.CreatedAt = now
	f.messages[message.SessionID] = append(f.messages[message.SessionID], message)
	return message, nil
}

func (f *fakeStore) ListMessages(_ context.Context, sessionID string, limit, offset int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return page(f.messages[sessionID], limit, offset), nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, entry store.ActivityEntry) error {
	if f.insertActivityFn != nil {
		return f.insertActivityFn(ctx, entry)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.activity) + 1)
	entry.CreatedAt = time.Now()
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) ListActivity(_ context.Context, resourceType, resourceID string, limit int) ([]store.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ActivityEntry, 0)
	for i := len(f.activity) - 1; i >= 0 && len(items) < limit; i-- {
		entry := f.activity[i]
		if entry.ResourceType == resourceType && entry.ResourceID == resourceID {
			items = append(items, entry)
		}
	}
	return items, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func fakeNextToken(visibility string, current *string) *string {
	if visibility == "private" {
		return nil
	}
	if current != nil {
		return current
	}
	fresh := util.NewShareToken()
	return &fresh
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			TokenSecret: "test-secret",
			AccessTTL:   time.Hour,
			RefreshTTL:  24 * time.Hour,
		},
		store:    fs,
		refresh:  fs,
		auth:     authpw.NewService(fs),
		exporter: export.NewService(&exportAdapter{store: fs}),
	}
}

func seedUser(fs *fakeStore, id, username string) store.User {
	user := store.User{
		ID:          id,
		Username:    username,
		DisplayName: username,
		IsActive:    true,
	}
	_ = fs.CreateUser(context.Background(), user)
	return user
}

func seedProject(fs *fakeStore, id, ownerID, name, visibility string) store.Project {
	_ = fs.CreateProject(context.Background(), store.Project{ID: id, OwnerID: ownerID, Name: name})
	if visibility != "private" {
		project, _ := fs.SetProjectVisibility(context.Background(), id, visibility)
		return project
	}
	project, _ := fs.GetProject(context.Background(), id)
	return project
}

func seedSession(fs *fakeStore, id, projectID, ownerID, title, visibility string) store.ChatSession {
	_ = fs.CreateSession(context.Background(), store.ChatSession{ID: id, ProjectID: projectID, OwnerID: ownerID, Title: title})
	if visibility != "private" {
		chat, _ := fs.SetSessionVisibility(context.Background(), id, visibility)
		return chat
	}
	chat, _ := fs.GetSession(context.Background(), id)
	return chat
}

func userSession(user store.User) Session {
	return Session{UserID: user.ID, Username: user.Username, DisplayName: user.DisplayName, IsAdmin: user.IsAdmin}
}
