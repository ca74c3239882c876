package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"inkwright/internal/types"
)

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, name, defaultModelID string) (*types.Project, error) {
	p := &types.Project{
		ID:             s.NewID(),
		Name:           name,
		DefaultModelID: defaultModelID,
		CreatedAt:      now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, default_model_id, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.DefaultModelID, formatTime(p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProject fetches a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, default_model_id, created_at FROM projects WHERE id = ?`, id)
	var p types.Project
	var created string
	if err := row.Scan(&p.ID, &p.Name, &p.DefaultModelID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// ListProjects returns all projects ordered by ID.
func (s *Store) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, default_model_id, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		var created string
		if err := rows.Scan(&p.ID, &p.Name, &p.DefaultModelID, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateResource ingests an already-extracted text resource. Text extraction
// from binary formats happens upstream; the store only ever sees plain text.
func (s *Store) CreateResource(ctx context.Context, r *types.Resource) error {
	if !r.Category.Valid() {
		return fmt.Errorf("invalid resource category %q", r.Category)
	}
	if r.ID == "" {
		r.ID = s.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, project_id, label, category, origin, text, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.Label, string(r.Category), string(r.Origin), r.Text,
		boolToInt(r.Active), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	s.logger.Debug("resource created",
		zap.String("id", r.ID),
		zap.String("category", string(r.Category)),
		zap.Int("bytes", len(r.Text)))
	return nil
}

// GetResource fetches a resource with its cached token counts.
func (s *Store) GetResource(ctx context.Context, id string) (*types.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, label, category, origin, text, active, created_at
		 FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resource %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}
	if err := s.loadTokenCache(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListResources returns all resources of a project ordered by ID, with
// cached token counts attached.
func (s *Store) ListResources(ctx context.Context, projectID string) ([]types.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, label, category, origin, text, active, created_at
		 FROM resources WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The pool holds a single connection: the resource rows must be fully
	// drained and closed before any further query runs.
	rows.Close()

	caches, err := s.projectTokenCache(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].TokenCache = caches[out[i].ID]
	}
	return out, nil
}

// ActiveResources returns a by-value snapshot of the active resources of a
// project, ordered by ID. The orchestrator takes one snapshot per pass so
// a toggle mid-run only affects the next pass.
func (s *Store) ActiveResources(ctx context.Context, projectID string) ([]types.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, label, category, origin, text, active, created_at
		 FROM resources WHERE project_id = ? AND active = 1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ToggleResource sets a resource's active flag.
func (s *Store) ToggleResource(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// UpdateResourceText replaces a resource's text. Cached token counts and
// chunks keyed to the old content are dropped; they are recomputed lazily.
func (s *Store) UpdateResourceText(ctx context.Context, id, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE resources SET text = ? WHERE id = ?`, text, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %s: %w", id, types.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM token_cache WHERE resource_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_chunks WHERE resource_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE resource_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteResource removes a resource; chunks, cache entries, and summaries
// cascade.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// =============================================================================
// Token cache persistence
// =============================================================================

// CachedTokenCount returns the persisted token count for (resource, model)
// if the stored content hash still matches contentHash. A stale hash means
// the resource text changed since the count was taken; the row is evicted
// and a miss is reported.
func (s *Store) CachedTokenCount(ctx context.Context, resourceID, modelID, contentHash string) (int, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_hash, token_count FROM token_cache WHERE resource_id = ? AND model_id = ?`,
		resourceID, modelID)
	var storedHash string
	var count int
	if err := row.Scan(&storedHash, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if storedHash != contentHash {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM token_cache WHERE resource_id = ? AND model_id = ?`,
			resourceID, modelID); err != nil {
			return 0, false, err
		}
		s.logger.Debug("evicted stale token cache entry",
			zap.String("resource", resourceID),
			zap.String("model", modelID))
		return 0, false, nil
	}
	return count, true, nil
}

// PutTokenCount upserts the token count for (resource, model) at contentHash.
func (s *Store) PutTokenCount(ctx context.Context, resourceID, modelID, contentHash string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO token_cache (resource_id, model_id, content_hash, token_count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (resource_id, model_id) DO UPDATE SET content_hash = excluded.content_hash, token_count = excluded.token_count`,
		resourceID, modelID, contentHash, count)
	return err
}

// projectTokenCache fetches every cached count for a project in one query,
// as resource_id → model_id → token_count.
func (s *Store) projectTokenCache(ctx context.Context, projectID string) (map[string]map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tc.resource_id, tc.model_id, tc.token_count
		 FROM token_cache tc
		 JOIN resources r ON r.id = tc.resource_id
		 WHERE r.project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var resourceID, modelID string
		var count int
		if err := rows.Scan(&resourceID, &modelID, &count); err != nil {
			return nil, err
		}
		if out[resourceID] == nil {
			out[resourceID] = make(map[string]int)
		}
		out[resourceID][modelID] = count
	}
	return out, rows.Err()
}

func (s *Store) loadTokenCache(ctx context.Context, r *types.Resource) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, token_count FROM token_cache WHERE resource_id = ?`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var modelID string
		var count int
		if err := rows.Scan(&modelID, &count); err != nil {
			return err
		}
		if r.TokenCache == nil {
			r.TokenCache = make(map[string]int)
		}
		r.TokenCache[modelID] = count
	}
	return rows.Err()
}

// =============================================================================
// Summaries and chunks
// =============================================================================

// SetSummary stores the precomputed short summary for a resource. Summaries
// are supplied by an external collaborator and merely consumed by the
// planner's fallback mode.
func (s *Store) SetSummary(ctx context.Context, resourceID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (resource_id, text, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (resource_id) DO UPDATE SET text = excluded.text, created_at = excluded.created_at`,
		resourceID, text, formatTime(now()))
	return err
}

// Summaries returns resource_id → summary text for a project.
func (s *Store) Summaries(ctx context.Context, projectID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.resource_id, s.text FROM summaries s
		 JOIN resources r ON r.id = s.resource_id WHERE r.project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		out[id] = text
	}
	return out, rows.Err()
}

// ReplaceChunks atomically replaces the chunk set of a resource.
func (s *Store) ReplaceChunks(ctx context.Context, resourceID string, chunks []types.ResourceChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_chunks WHERE resource_id = ?`, resourceID); err != nil {
		return err
	}
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = s.NewID()
		}
		c.ResourceID = resourceID
		c.SequenceIndex = i
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO resource_chunks (id, resource_id, sequence_index, text, token_count)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.ResourceID, c.SequenceIndex, c.Text, c.TokenCount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Chunks returns a resource's chunks ordered by sequence index.
func (s *Store) Chunks(ctx context.Context, resourceID string) ([]types.ResourceChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource_id, sequence_index, text, token_count
		 FROM resource_chunks WHERE resource_id = ? ORDER BY sequence_index`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ResourceChunk
	for rows.Next() {
		var c types.ResourceChunk
		if err := rows.Scan(&c.ID, &c.ResourceID, &c.SequenceIndex, &c.Text, &c.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// Style profiles
// =============================================================================

// StyleProfile returns the cached per-project style profile, or ErrNotFound.
func (s *Store) StyleProfile(ctx context.Context, projectID string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT text FROM style_profiles WHERE project_id = ?`, projectID)
	var text string
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("style profile for project %s: %w", projectID, types.ErrNotFound)
		}
		return "", err
	}
	return text, nil
}

// SetStyleProfile caches the style profile for a project. The style editor
// computes it once from the corpus and reuses it across runs.
func (s *Store) SetStyleProfile(ctx context.Context, projectID, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO style_profiles (project_id, text, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (project_id) DO UPDATE SET text = excluded.text, created_at = excluded.created_at`,
		projectID, text, formatTime(now()))
	return err
}

// =============================================================================
// helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*types.Resource, error) {
	var r types.Resource
	var active int
	var created string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Label, &r.Category, &r.Origin, &r.Text, &active, &created); err != nil {
		return nil, err
	}
	r.Active = active != 0
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
