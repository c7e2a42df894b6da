package store

import (
	"context"
	"database/sql"
	"fmt"
)

const projectColumns = `id, owner_id, name, COALESCE(description, ''), visibility, share_token, created_at, updated_at`

func scanProject(scan func(dest ...any) error) (Project, error) {
	var item Project
	err := scan(
		&item.ID,
		&item.OwnerID,
		&item.Name,
		&item.Description,
		&item.Visibility,
		&item.ShareToken,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, name, description, visibility)
		VALUES ($1, $2, $3, $4, 'private')
	`, project.ID, project.OwnerID, project.Name, project.Description)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id=$1
	`, projectID).Scan)
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, projectID, name, description)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPublicProjects(ctx context.Context, limit, offset int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE visibility='public'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list public projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan public project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public projects: %w", err)
	}
	return items, nil
}

// ListSharedProjects returns projects where the user holds a collaborator
// grant, newest grant first.
func (s *PostgresStore) ListSharedProjects(ctx context.Context, userID string, limit, offset int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.owner_id, p.name, COALESCE(p.description, ''), p.visibility, p.share_token, p.created_at, p.updated_at, pc.role
		FROM project_collaborators pc
		JOIN projects p ON p.id = pc.project_id
		WHERE pc.user_id=$1
		ORDER BY pc.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list shared projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&item.Name,
			&item.Description,
			&item.Visibility,
			&item.ShareToken,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ViewerRole,
		); err != nil {
			return nil, fmt.Errorf("scan shared project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProjectByToken(ctx context.Context, token string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE share_token=$1 AND visibility <> 'private'
	`, token).Scan)
}

func (s *PostgresStore) GetProjectCollaborator(ctx context.Context, projectID, userID string) (ProjectCollaborator, error) {
	var item ProjectCollaborator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, added_by, created_at
		FROM project_collaborators
		WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&item.ID, &item.ProjectID, &item.UserID, &item.Role, &item.AddedBy, &item.CreatedAt)
	if err != nil {
		return ProjectCollaborator{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListProjectCollaborators(ctx context.Context, projectID string) ([]ProjectCollaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.id, pc.project_id, pc.user_id, pc.role, pc.added_by, pc.created_at, u.username, u.display_name
		FROM project_collaborators pc
		JOIN users u ON u.id = pc.user_id
		WHERE pc.project_id=$1
		ORDER BY pc.created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectCollaborator, 0)
	for rows.Next() {
		var item ProjectCollaborator
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.UserID,
			&item.Role,
			&item.AddedBy,
			&item.CreatedAt,
			&item.Username,
			&item.DisplayName,
		); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return items, nil
}

// UpsertProjectCollaborator grants or updates a collaborator role. Re-adding
// an existing collaborator overwrites the role.
func (s *PostgresStore) UpsertProjectCollaborator(ctx context.Context, collab ProjectCollaborator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_collaborators (id, project_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role, added_by=EXCLUDED.added_by
	`, collab.ID, collab.ProjectID, collab.UserID, collab.Role, collab.AddedBy)
	if err != nil {
		return fmt.Errorf("upsert collaborator: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteProjectCollaborator(ctx context.Context, projectID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM project_collaborators WHERE project_id=$1 AND user_id=$2
	`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("delete collaborator: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete collaborator rows: %w", err)
	}
	return affected > 0, nil
}

// SetProjectVisibility changes visibility and maintains the share token in
// the same transaction: going private clears the token, leaving private mints
// a fresh one, and moving between shared and public keeps the existing token.
// Token collisions are retried with a new token.
func (s *PostgresStore) SetProjectVisibility(ctx context.Context, projectID, visibility string) (Project, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return Project{}, fmt.Errorf("begin visibility tx: %w", err)
		}

		var currentToken sql.NullString
		if err := tx.QueryRowContext(ctx, `
			SELECT share_token FROM projects WHERE id=$1 FOR UPDATE
		`, projectID).Scan(&currentToken); err != nil {
			_ = tx.Rollback()
			return Project{}, err
		}

		nextToken, minted := nextShareToken(visibility, currentToken)

		item, err := scanProject(tx.QueryRowContext(ctx, `
			UPDATE projects SET visibility=$2, share_token=$3, updated_at=NOW()
			WHERE id=$1
			RETURNING `+projectColumns+`
		`, projectID, visibility, nextToken).Scan)
		if err != nil {
			_ = tx.Rollback()
			if minted && isUniqueViolation(err) {
				continue
			}
			return Project{}, fmt.Errorf("set project visibility: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return Project{}, fmt.Errorf("commit visibility tx: %w", err)
		}
		return item, nil
	}
	return Project{}, fmt.Errorf("set project visibility: token collisions exhausted retries")
}
