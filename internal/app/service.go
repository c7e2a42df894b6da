package app

import (
	"context"
	"log"
	"time"

	"parley/api/internal/archive"
	"parley/api/internal/auth"
	"parley/api/internal/authpw"
	"parley/api/internal/config"
	"parley/api/internal/export"
	"parley/api/internal/search"
	"parley/api/internal/session"
	"parley/api/internal/store"
	"parley/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	DisplayName  string
	IsAdmin      bool
	JTI          string
	ExpiresAt    time.Time
}

// Anonymous reports whether the session belongs to no authenticated user.
// Anonymous callers can still read public resources and resolve share links.
func (s Session) Anonymous() bool {
	return s.UserID == ""
}

type dataStore interface {
	GetUserByUsername(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	UpdateUserPassword(context.Context, string, string) error
	CountUsers(context.Context) (int, error)

	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	CreateProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	UpdateProject(context.Context, string, string, string) error
	DeleteProject(context.Context, string) error
	ListProjectsByOwner(context.Context, string) ([]store.Project, error)
	ListPublicProjects(context.Context, int, int) ([]store.Project, error)
	ListSharedProjects(context.Context, string, int, int) ([]store.Project, error)
	GetProjectByToken(context.Context, string) (store.Project, error)
	SetProjectVisibility(context.Context, string, string) (store.Project, error)
	GetProjectCollaborator(context.Context, string, string) (store.ProjectCollaborator, error)
	ListProjectCollaborators(context.Context, string) ([]store.ProjectCollaborator, error)
	UpsertProjectCollaborator(context.Context, store.ProjectCollaborator) error
	DeleteProjectCollaborator(context.Context, string, string) (bool, error)

	CreateSession(context.Context, store.ChatSession) error
	GetSession(context.Context, string) (store.ChatSession, error)
	UpdateSessionTitle(context.Context, string, string) error
	DeleteSession(context.Context, string) error
	ListProjectSessions(context.Context, string, string) ([]store.ChatSession, error)
	ListPublicSessions(context.Context, int, int) ([]store.ChatSession, error)
	ListSharedSessions(context.Context, string, int, int) ([]store.ChatSession, error)
	GetSessionByToken(context.Context, string) (store.ChatSession, error)
	SetSessionVisibility(context.Context, string, string) (store.ChatSession, error)
	GetSessionShare(context.Context, string, string) (store.SessionShare, error)
	UpsertSessionShare(context.Context, store.SessionShare) (store.SessionShare, error)
	DeleteSessionShare(context.Context, string, string) (bool, error)
	ListSessionShares(context.Context, string) ([]store.SessionShare, error)
	AppendMessage(context.Context, store.Message) (store.Message, error)
	ListMessages(context.Context, string, int, int) ([]store.Message, error)

	InsertActivity(context.Context, store.ActivityEntry) error
	ListActivity(context.Context, string, string, int) ([]store.ActivityEntry, error)

	Ping(ctx context.Context) error
}

// refreshStore is the pluggable backend for refresh tokens. PostgreSQL serves
// by default; Redis takes over when configured.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexSession(search.SessionRecord)
	IndexProject(search.ProjectRecord)
	DeleteSession(id string)
	DeleteProject(id string)
	ReindexAllFromPG(ctx context.Context)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type archiver interface {
	Store(sessionID, filename, mimeType string, data []byte)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	refresh  refreshStore
	auth     *authpw.Service
	search   searchIndex
	exporter exporter
	archive  archiver
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, archiveService *archive.Service) *Service {
	service := &Service{
		cfg:      cfg,
		store:    dataStore,
		refresh:  dataStore,
		auth:     authpw.NewService(dataStore),
		search:   searchService,
		exporter: export.NewService(&exportAdapter{store: dataStore}),
	}
	// Assign only when configured so the nil check in ExportChatSession does
	// not see a non-nil interface wrapping a nil pointer.
	if archiveService != nil {
		service.archive = archiveService
	}
	return service
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, redisStore *session.RedisStore, searchService *search.Service, archiveService *archive.Service) *Service {
	service := New(cfg, dataStore, searchService, archiveService)
	service.refresh = redisStore
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the first admin account on an empty database and pushes
// public resources into the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		if s.cfg.AdminPassword == "" {
			log.Printf("bootstrap: no admin password configured, skipping admin seed")
		} else {
			hash, err := authpw.HashPassword(s.cfg.AdminPassword)
			if err != nil {
				return err
			}
			if err := s.store.CreateUser(ctx, store.User{
				ID:            util.NewID("usr"),
				Username:      s.cfg.AdminUsername,
				DisplayName:   s.cfg.AdminUsername,
				PasswordHash:  hash,
				IsAdmin:       true,
				IsActive:      true,
				ProfilePublic: false,
			}); err != nil {
				return err
			}
			log.Printf("bootstrap: seeded admin user %q", s.cfg.AdminUsername)
		}
	}

	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) SignUp(ctx context.Context, username, password, displayName string) (Session, error) {
	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	return s.auth.ChangePassword(ctx, session.UserID, currentPassword, newPassword)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The Redis backend stores only the user ID; reload the full record so
	// deactivation is always honored.
	user, err = s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Admin:    user.IsAdmin,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		IsAdmin:      user.IsAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		IsAdmin:     user.IsAdmin,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// recordActivity writes an audit entry synchronously on the request path.
// Recording failures are logged and never fail the triggering operation.
func (s *Service) recordActivity(ctx context.Context, actorID *string, action, resourceType, resourceID string, details map[string]any) {
	err := s.store.InsertActivity(ctx, store.ActivityEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
	if err != nil {
		log.Printf("activity: record %s on %s/%s: %v", action, resourceType, resourceID, err)
	}
}

func actorRef(session Session) *string {
	if session.Anonymous() {
		return nil
	}
	id := session.UserID
	return &id
}
