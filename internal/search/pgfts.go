package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Only rows with visibility = 'public' are searched, matching what the
// Meilisearch indexes hold.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across public sessions and projects
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultSession {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'session'::text AS type, cs.id, cs.title,
				''::text AS snippet,
				cs.project_id, cs.owner_id,
				ts_rank(cs.search_vector, %s) AS rank
			FROM chat_sessions cs
			WHERE cs.visibility = 'public' AND cs.search_vector @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultProject {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.id, p.name AS title,
				ts_headline('english', coalesce(p.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS project_id, p.owner_id,
				ts_rank(p.search_vector, %s) AS rank
			FROM projects p
			WHERE p.visibility = 'public' AND p.search_vector @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, owner_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadPublicRecords returns all public resources for full reindexing.
func (p *PgFTS) LoadPublicRecords(ctx context.Context) ([]SessionRecord, []ProjectRecord, error) {
	sessionRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, project_id, owner_id
		FROM chat_sessions
		WHERE visibility = 'public'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load public sessions: %w", err)
	}
	defer sessionRows.Close()

	sessions := make([]SessionRecord, 0)
	for sessionRows.Next() {
		var rec SessionRecord
		if err := sessionRows.Scan(&rec.ID, &rec.Title, &rec.ProjectID, &rec.OwnerID); err != nil {
			return nil, nil, fmt.Errorf("scan public session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := sessionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate public sessions: %w", err)
	}

	projectRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), owner_id
		FROM projects
		WHERE visibility = 'public'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load public projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var rec ProjectRecord
		if err := projectRows.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.OwnerID); err != nil {
			return nil, nil, fmt.Errorf("scan public project: %w", err)
		}
		projects = append(projects, rec)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate public projects: %w", err)
	}

	return sessions, projects, nil
}
