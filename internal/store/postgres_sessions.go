package store

import (
	"context"
	"database/sql"
	"fmt"

	"parley/api/internal/util"
)

const maxTokenAttempts = 5

// nextShareToken decides the share token for a visibility transition. The
// invariant is token non-null iff visibility is not private. Transitions
// between shared and public keep the existing token so outstanding links
// survive; only passing through private rotates it. minted reports whether a
// fresh token was generated, which is when a unique violation is retryable.
func nextShareToken(visibility string, current sql.NullString) (token *string, minted bool) {
	if visibility == "private" {
		return nil, false
	}
	if current.Valid {
		return &current.String, false
	}
	fresh := util.NewShareToken()
	return &fresh, true
}

const sessionColumns = `id, project_id, owner_id, title, visibility, share_token, message_count, last_message_at, created_at, updated_at`

func scanSession(scan func(dest ...any) error) (ChatSession, error) {
	var item ChatSession
	err := scan(
		&item.ID,
		&item.ProjectID,
		&item.OwnerID,
		&item.Title,
		&item.Visibility,
		&item.ShareToken,
		&item.MessageCount,
		&item.LastMessageAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) CreateSession(ctx context.Context, session ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, project_id, owner_id, title, visibility)
		VALUES ($1, $2, $3, $4, 'private')
	`, session.ID, session.ProjectID, session.OwnerID, session.Title)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (ChatSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions WHERE id=$1
	`, sessionID).Scan)
}

func (s *PostgresStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET title=$2, updated_at=NOW() WHERE id=$1
	`, sessionID, title)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListProjectSessions returns every session in a project along with the
// viewer's explicit share grant. The caller filters through the resolver.
func (s *PostgresStore) ListProjectSessions(ctx context.Context, projectID, viewerID string) ([]ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id, cs.project_id, cs.owner_id, cs.title, cs.visibility, cs.share_token, cs.message_count, cs.last_message_at, cs.created_at, cs.updated_at,
			COALESCE(ss.permission, '')
		FROM chat_sessions cs
		LEFT JOIN session_shares ss ON ss.session_id = cs.id AND ss.shared_with_user_id = $2
		WHERE cs.project_id=$1
		ORDER BY cs.updated_at DESC
	`, projectID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list project sessions: %w", err)
	}
	defer rows.Close()

	items := make([]ChatSession, 0)
	for rows.Next() {
		var item ChatSession
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.OwnerID,
			&item.Title,
			&item.Visibility,
			&item.ShareToken,
			&item.MessageCount,
			&item.LastMessageAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ViewerGrant,
		); err != nil {
			return nil, fmt.Errorf("scan project session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project sessions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPublicSessions(ctx context.Context, limit, offset int) ([]ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE visibility='public'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list public sessions: %w", err)
	}
	defer rows.Close()

	items := make([]ChatSession, 0)
	for rows.Next() {
		item, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan public session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public sessions: %w", err)
	}
	return items, nil
}

// ListSharedSessions returns sessions explicitly shared with the user,
// newest grant first.
func (s *PostgresStore) ListSharedSessions(ctx context.Context, userID string, limit, offset int) ([]ChatSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.id, cs.project_id, cs.owner_id, cs.title, cs.visibility, cs.share_token, cs.message_count, cs.last_message_at, cs.created_at, cs.updated_at,
			ss.permission
		FROM session_shares ss
		JOIN chat_sessions cs ON cs.id = ss.session_id
		WHERE ss.shared_with_user_id=$1
		ORDER BY ss.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list shared sessions: %w", err)
	}
	defer rows.Close()

	items := make([]ChatSession, 0)
	for rows.Next() {
		var item ChatSession
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.OwnerID,
			&item.Title,
			&item.Visibility,
			&item.ShareToken,
			&item.MessageCount,
			&item.LastMessageAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ViewerGrant,
		); err != nil {
			return nil, fmt.Errorf("scan shared session: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared sessions: %w", err)
	}
	return items, nil
}

// GetSessionByToken resolves a share token by exact match against non-private
// sessions only. A token left over from before a resource went private never
// resolves because going private clears the column.
func (s *PostgresStore) GetSessionByToken(ctx context.Context, token string) (ChatSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE share_token=$1 AND visibility <> 'private'
	`, token).Scan)
}

// SetSessionVisibility changes visibility and maintains the share token in
// the same transaction. Token rules are in nextShareToken.
func (s *PostgresStore) SetSessionVisibility(ctx context.Context, sessionID, visibility string) (ChatSession, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return ChatSession{}, fmt.Errorf("begin visibility tx: %w", err)
		}

		var currentToken sql.NullString
		if err := tx.QueryRowContext(ctx, `
			SELECT share_token FROM chat_sessions WHERE id=$1 FOR UPDATE
		`, sessionID).Scan(&currentToken); err != nil {
			_ = tx.Rollback()
			return ChatSession{}, err
		}

		nextToken, minted := nextShareToken(visibility, currentToken)

		item, err := scanSession(tx.QueryRowContext(ctx, `
			UPDATE chat_sessions SET visibility=$2, share_token=$3, updated_at=NOW()
			WHERE id=$1
			RETURNING `+sessionColumns+`
		`, sessionID, visibility, nextToken).Scan)
		if err != nil {
			_ = tx.Rollback()
			if minted && isUniqueViolation(err) {
				continue
			}
			return ChatSession{}, fmt.Errorf("set session visibility: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return ChatSession{}, fmt.Errorf("commit visibility tx: %w", err)
		}
		return item, nil
	}
	return ChatSession{}, fmt.Errorf("set session visibility: token collisions exhausted retries")
}

func (s *PostgresStore) GetSessionShare(ctx context.Context, sessionID, userID string) (SessionShare, error) {
	var item SessionShare
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, shared_with_user_id, shared_by_user_id, permission, created_at
		FROM session_shares
		WHERE session_id=$1 AND shared_with_user_id=$2
	`, sessionID, userID).Scan(&item.ID, &item.SessionID, &item.SharedWithUserID, &item.SharedByUserID, &item.Permission, &item.CreatedAt)
	if err != nil {
		return SessionShare{}, err
	}
	return item, nil
}

// UpsertSessionShare grants or updates a per-user share. Re-sharing with the
// same user overwrites the permission.
func (s *PostgresStore) UpsertSessionShare(ctx context.Context, share SessionShare) (SessionShare, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO session_shares (id, session_id, shared_with_user_id, shared_by_user_id, permission)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, shared_with_user_id)
			DO UPDATE SET permission=EXCLUDED.permission, shared_by_user_id=EXCLUDED.shared_by_user_id
		RETURNING id, created_at
	`, share.ID, share.SessionID, share.SharedWithUserID, share.SharedByUserID, share.Permission).
		Scan(&share.ID, &share.CreatedAt)
	if err != nil {
		return SessionShare{}, fmt.Errorf("upsert share: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) DeleteSessionShare(ctx context.Context, sessionID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM session_shares WHERE session_id=$1 AND shared_with_user_id=$2
	`, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("delete share: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete share rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListSessionShares(ctx context.Context, sessionID string) ([]SessionShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ss.id, ss.session_id, ss.shared_with_user_id, ss.shared_by_user_id, ss.permission, ss.created_at, u.username
		FROM session_shares ss
		JOIN users u ON u.id = ss.shared_with_user_id
		WHERE ss.session_id=$1
		ORDER BY ss.created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]SessionShare, 0)
	for rows.Next() {
		var item SessionShare
		if err := rows.Scan(
			&item.ID,
			&item.SessionID,
			&item.SharedWithUserID,
			&item.SharedByUserID,
			&item.Permission,
			&item.CreatedAt,
			&item.SharedWithUsername,
		); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return items, nil
}

// AppendMessage inserts a message and bumps the session's denormalized
// counters in one transaction. The index is assigned from the bumped count,
// so it is strictly increasing and never reused.
func (s *PostgresStore) AppendMessage(ctx context.Context, message Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin append tx: %w", err)
	}

	var index int
	if err := tx.QueryRowContext(ctx, `
		UPDATE chat_sessions
		SET message_count = message_count + 1, last_message_at = NOW(), updated_at = NOW()
		WHERE id=$1
		RETURNING message_count
	`, message.SessionID).Scan(&index); err != nil {
		_ = tx.Rollback()
		return Message{}, err
	}

	message.MessageIndex = index
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, session_id, message_index, role, author_id, body)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, message.ID, message.SessionID, message.MessageIndex, message.Role, message.AuthorID, message.Body).
		Scan(&message.CreatedAt); err != nil {
		_ = tx.Rollback()
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit append tx: %w", err)
	}
	return message, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, message_index, role, author_id, body, created_at
		FROM messages
		WHERE session_id=$1
		ORDER BY message_index ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(
			&item.ID,
			&item.SessionID,
			&item.MessageIndex,
			&item.Role,
			&item.AuthorID,
			&item.Body,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}
