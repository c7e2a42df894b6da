package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertActivity appends an audit row. Entries are append-only and never
// updated; the actor is null for anonymous access.
func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (actor_id, action, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID, string(payload))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, resourceType, resourceID string, limit int) ([]ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, resource_type, resource_id, details, created_at
		FROM activity_log
		WHERE resource_type=$1 AND resource_id=$2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var item ActivityEntry
		var details []byte
		if err := rows.Scan(
			&item.ID,
			&item.ActorID,
			&item.Action,
			&item.ResourceType,
			&item.ResourceID,
			&details,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &item.Details); err != nil {
				return nil, fmt.Errorf("decode activity details: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}
