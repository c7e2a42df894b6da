package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"parley/api/internal/access"
	"parley/api/internal/search"
	"parley/api/internal/store"
	"parley/api/internal/util"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func notFound() *DomainError {
	return domainError(404, "NOT_FOUND", "Not found", nil)
}

func forbidden() *DomainError {
	return domainError(403, "FORBIDDEN", "Forbidden", nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(422, "VALIDATION_ERROR", message, details)
}

// projectLevel computes the caller's effective level on a project. The
// collaborator grant, if any, feeds the resolver alongside ownership and the
// public visibility floor.
func (s *Service) projectLevel(ctx context.Context, project store.Project, session Session) (access.Level, error) {
	grant := access.LevelNone
	if !session.Anonymous() && session.UserID != project.OwnerID {
		collab, err := s.store.GetProjectCollaborator(ctx, project.ID, session.UserID)
		switch {
		case err == nil:
			grant = access.RoleLevel(collab.Role)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return access.LevelNone, err
		}
	}
	return access.Resolve(project.OwnerID, session.UserID, grant, access.Visibility(project.Visibility)), nil
}

// requireProject loads a project and enforces action. Callers without read
// access get a 404 rather than a 403 so private projects stay unobservable.
func (s *Service) requireProject(ctx context.Context, session Session, projectID string, action access.Action) (store.Project, access.Level, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, access.LevelNone, err
	}
	level, err := s.projectLevel(ctx, project, session)
	if err != nil {
		return store.Project{}, access.LevelNone, err
	}
	if !access.Can(level, access.ActionRead) {
		return store.Project{}, access.LevelNone, notFound()
	}
	if !access.Can(level, action) {
		return store.Project{}, access.LevelNone, forbidden()
	}
	return project, level, nil
}

// projectPayload shapes a project for API responses. The share token is only
// included for the owner; everyone else gets the link from the owner, not
// from listings.
func projectPayload(project store.Project, level access.Level) map[string]any {
	payload := map[string]any{
		"id":          project.ID,
		"ownerId":     project.OwnerID,
		"name":        project.Name,
		"description": project.Description,
		"visibility":  project.Visibility,
		"permission":  string(level),
		"createdAt":   project.CreatedAt,
		"updatedAt":   project.UpdatedAt,
	}
	if level == access.LevelOwner && project.ShareToken != nil {
		payload["shareToken"] = *project.ShareToken
	}
	return payload
}

func (s *Service) CreateProject(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required", nil)
	}

	project := store.Project{
		ID:          util.NewID("prj"),
		OwnerID:     session.UserID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domainError(409, "CONFLICT", "A project with that name already exists", nil)
		}
		return nil, err
	}

	created, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, actorRef(session), "project.created", "project", created.ID, map[string]any{"name": created.Name})
	return projectPayload(created, access.LevelOwner), nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	project, level, err := s.requireProject(ctx, session, projectID, access.ActionRead)
	if err != nil {
		return nil, err
	}
	return projectPayload(project, level), nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID, name, description string) (map[string]any, error) {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionManage); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required", nil)
	}
	if err := s.store.UpdateProject(ctx, projectID, name, strings.TrimSpace(description)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domainError(409, "CONFLICT", "A project with that name already exists", nil)
		}
		return nil, err
	}
	updated, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if updated.Visibility == string(access.VisibilityPublic) && s.search != nil {
		s.search.IndexProject(search.ProjectRecord{
			ID:          updated.ID,
			Name:        updated.Name,
			Description: updated.Description,
			OwnerID:     updated.OwnerID,
		})
	}
	return projectPayload(updated, access.LevelOwner), nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	project, _, err := s.requireProject(ctx, session, projectID, access.ActionManage)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	s.recordActivity(ctx, actorRef(session), "project.deleted", "project", projectID, map[string]any{"name": project.Name})
	return nil
}

func (s *Service) ListMyProjects(ctx context.Context, session Session) (map[string]any, error) {
	projects, err := s.store.ListProjectsByOwner(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectPayload(project, access.LevelOwner))
	}
	return map[string]any{"projects": items}, nil
}

// ListPublicProjects is the anonymous-safe discovery listing. hasMore is the
// page-full approximation: a final page whose size equals the limit reports
// one more page that turns out empty.
func (s *Service) ListPublicProjects(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	projects, err := s.store.ListPublicProjects(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		level := access.LevelView
		if !session.Anonymous() && session.UserID == project.OwnerID {
			level = access.LevelOwner
		}
		items = append(items, projectPayload(project, level))
	}
	return map[string]any{
		"projects": items,
		"hasMore":  len(projects) == limit,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

func (s *Service) ListProjectsSharedWithMe(ctx context.Context, session Session, limit, offset int) (map[string]any, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	projects, err := s.store.ListSharedProjects(ctx, session.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectPayload(project, access.RoleLevel(project.ViewerRole)))
	}
	return map[string]any{
		"projects": items,
		"hasMore":  len(projects) == limit,
		"limit":    limit,
		"offset":   offset,
	}, nil
}

func (s *Service) SetProjectVisibility(ctx context.Context, session Session, projectID, visibility string) (map[string]any, error) {
	if !access.ValidVisibility(visibility) {
		return nil, validationError("visibility must be private, shared, or public", map[string]any{"visibility": visibility})
	}
	project, _, err := s.requireProject(ctx, session, projectID, access.ActionManage)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.SetProjectVisibility(ctx, projectID, visibility)
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		if updated.Visibility == string(access.VisibilityPublic) {
			s.search.IndexProject(search.ProjectRecord{
				ID:          updated.ID,
				Name:        updated.Name,
				Description: updated.Description,
				OwnerID:     updated.OwnerID,
			})
		} else if project.Visibility == string(access.VisibilityPublic) {
			s.search.DeleteProject(updated.ID)
		}
	}

	s.recordActivity(ctx, actorRef(session), "project.visibility_changed", "project", projectID, map[string]any{
		"from": project.Visibility,
		"to":   updated.Visibility,
	})
	return projectPayload(updated, access.LevelOwner), nil
}

func collaboratorPayload(collab store.ProjectCollaborator) map[string]any {
	return map[string]any{
		"userId":      collab.UserID,
		"username":    collab.Username,
		"displayName": collab.DisplayName,
		"role":        collab.Role,
		"addedBy":     collab.AddedBy,
		"createdAt":   collab.CreatedAt,
	}
}

func (s *Service) ListProjectCollaborators(ctx context.Context, session Session, projectID string) (map[string]any, error) {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionRead); err != nil {
		return nil, err
	}
	collaborators, err := s.store.ListProjectCollaborators(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(collaborators))
	for _, collab := range collaborators {
		items = append(items, collaboratorPayload(collab))
	}
	return map[string]any{"collaborators": items}, nil
}

func (s *Service) AddProjectCollaborator(ctx context.Context, session Session, projectID, username, role string) (map[string]any, error) {
	if !access.ValidCollaboratorRole(role) {
		return nil, validationError("role must be viewer, contributor, or admin", map[string]any{"role": role})
	}
	project, _, err := s.requireProject(ctx, session, projectID, access.ActionManage)
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
	if target.ID == project.OwnerID {
		return nil, validationError("the project owner cannot be added as a collaborator", nil)
	}

	if err := s.store.UpsertProjectCollaborator(ctx, store.ProjectCollaborator{
		ID:        util.NewID("pcl"),
		ProjectID: projectID,
		UserID:    target.ID,
		Role:      role,
		AddedBy:   session.UserID,
	}); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, actorRef(session), "project.collaborator_added", "project", projectID, map[string]any{
		"userId": target.ID,
		"role":   role,
	})
	return map[string]any{
		"userId":      target.ID,
		"username":    target.Username,
		"displayName": target.DisplayName,
		"role":        role,
	}, nil
}

func (s *Service) RemoveProjectCollaborator(ctx context.Context, session Session, projectID, userID string) error {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionManage); err != nil {
		return err
	}
	removed, err := s.store.DeleteProjectCollaborator(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return notFound()
	}
	s.recordActivity(ctx, actorRef(session), "project.collaborator_removed", "project", projectID, map[string]any{"userId": userID})
	return nil
}

func (s *Service) ProjectActivity(ctx context.Context, session Session, projectID string, limit int) (map[string]any, error) {
	if _, _, err := s.requireProject(ctx, session, projectID, access.ActionManage); err != nil {
		return nil, err
	}
	entries, err := s.store.ListActivity(ctx, "project", projectID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return map[string]any{"activity": activityPayload(entries)}, nil
}

func activityPayload(entries []store.ActivityEntry) []map[string]any {
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":           entry.ID,
			"action":       entry.Action,
			"resourceType": entry.ResourceType,
			"resourceId":   entry.ResourceID,
			"details":      entry.Details,
			"createdAt":    entry.CreatedAt,
		}
		if entry.ActorID != nil {
			item["actorId"] = *entry.ActorID
		} else {
			item["actorId"] = nil
		}
		items = append(items, item)
	}
	return items
}
