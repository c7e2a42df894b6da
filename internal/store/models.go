package store

import "time"

type User struct {
	ID            string
	Username      string
	DisplayName   string
	PasswordHash  string
	IsAdmin       bool
	IsActive      bool
	ProfilePublic bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Project struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Visibility  string
	ShareToken  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined field: the requesting user's collaborator role, if any.
	ViewerRole string
}

type ProjectCollaborator struct {
	ID        string
	ProjectID string
	UserID    string
	Role      string
	AddedBy   string
	CreatedAt time.Time
	// Joined fields for API responses
	Username    string
	DisplayName string
}

type ChatSession struct {
	ID            string
	ProjectID     string
	OwnerID       string
	Title         string
	Visibility    string
	ShareToken    *string
	MessageCount  int
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	// Joined field: the requesting user's share permission, if any.
	ViewerGrant string
}

type SessionShare struct {
	ID               string
	SessionID        string
	SharedWithUserID string
	SharedByUserID   string
	Permission       string
	CreatedAt        time.Time
	// Joined fields for API responses
	SharedWithUsername string
}

type Message struct {
	ID           string
	SessionID    string
	MessageIndex int
	Role         string
	AuthorID     *string
	Body         string
	CreatedAt    time.Time
}

type ActivityEntry struct {
	ID           int64
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}
