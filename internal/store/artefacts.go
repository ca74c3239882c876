package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"inkwright/internal/types"
)

// EnsureArtefact returns the project's artefact, creating it if absent.
// Each project has exactly one artefact (enforced by a unique constraint).
func (s *Store) EnsureArtefact(ctx context.Context, projectID, title string) (*types.Artefact, error) {
	a, err := s.artefactByProject(ctx, projectID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	a = &types.Artefact{
		ID:        s.NewID(),
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artefacts (id, project_id, title, current_version_id, created_at)
		 VALUES (?, ?, ?, NULL, ?)`,
		a.ID, a.ProjectID, a.Title, formatTime(a.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create artefact: %w", err)
	}
	return a, nil
}

// GetArtefact fetches an artefact by ID.
func (s *Store) GetArtefact(ctx context.Context, id string) (*types.Artefact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, COALESCE(current_version_id, ''), created_at
		 FROM artefacts WHERE id = ?`, id)
	return scanArtefact(row, id)
}

func (s *Store) artefactByProject(ctx context.Context, projectID string) (*types.Artefact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, COALESCE(current_version_id, ''), created_at
		 FROM artefacts WHERE project_id = ?`, projectID)
	return scanArtefact(row, "project "+projectID)
}

func scanArtefact(row *sql.Row, ref string) (*types.Artefact, error) {
	var a types.Artefact
	var created string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Title, &a.CurrentVersionID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("artefact %s: %w", ref, types.ErrNotFound)
		}
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// CommitVersion appends a new version and moves the current pointer to it,
// in one transaction. Versions are never mutated after creation.
func (s *Store) CommitVersion(ctx context.Context, artefactID string, createdBy types.VersionAuthor, promptSummary, content string) (*types.ArtefactVersion, error) {
	v := &types.ArtefactVersion{
		ID:            s.NewID(),
		ArtefactID:    artefactID,
		CreatedAt:     now(),
		CreatedBy:     createdBy,
		PromptSummary: promptSummary,
		Content:       content,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO artefact_versions (id, artefact_id, created_at, created_by, prompt_summary, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ArtefactID, formatTime(v.CreatedAt), string(v.CreatedBy), v.PromptSummary, v.Content); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE artefacts SET current_version_id = ? WHERE id = ?`, v.ID, artefactID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("artefact %s: %w", artefactID, types.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Debug("version committed",
		zap.String("artefact", artefactID),
		zap.String("version", v.ID),
		zap.String("by", string(v.CreatedBy)))
	return v, nil
}

// GetVersion fetches a version by ID.
func (s *Store) GetVersion(ctx context.Context, id string) (*types.ArtefactVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, artefact_id, created_at, created_by, prompt_summary, content
		 FROM artefact_versions WHERE id = ?`, id)
	var v types.ArtefactVersion
	var created string
	if err := row.Scan(&v.ID, &v.ArtefactID, &created, &v.CreatedBy, &v.PromptSummary, &v.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("version %s: %w", id, types.ErrNotFound)
		}
		return nil, err
	}
	v.CreatedAt = parseTime(created)
	return &v, nil
}

// CurrentContent returns the content of the artefact's current version, or
// an empty string when no version exists yet.
func (s *Store) CurrentContent(ctx context.Context, artefactID string) (string, error) {
	a, err := s.GetArtefact(ctx, artefactID)
	if err != nil {
		return "", err
	}
	if a.CurrentVersionID == "" {
		return "", nil
	}
	v, err := s.GetVersion(ctx, a.CurrentVersionID)
	if err != nil {
		return "", err
	}
	return v.Content, nil
}

// ListVersions returns the version history ordered oldest first. ULID ids
// make insertion order and id order coincide.
func (s *Store) ListVersions(ctx context.Context, artefactID string) ([]types.ArtefactVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, artefact_id, created_at, created_by, prompt_summary, content
		 FROM artefact_versions WHERE artefact_id = ? ORDER BY id`, artefactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ArtefactVersion
	for rows.Next() {
		var v types.ArtefactVersion
		var created string
		if err := rows.Scan(&v.ID, &v.ArtefactID, &created, &v.CreatedBy, &v.PromptSummary, &v.Content); err != nil {
			return nil, err
		}
		v.CreatedAt = parseTime(created)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RestoreVersion creates a new version whose content equals the old one's.
// History stays strictly append-only: restoring never rewinds the log, it
// extends it.
func (s *Store) RestoreVersion(ctx context.Context, artefactID, versionID string) (*types.ArtefactVersion, error) {
	old, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if old.ArtefactID != artefactID {
		return nil, fmt.Errorf("version %s does not belong to artefact %s: %w", versionID, artefactID, types.ErrNotFound)
	}
	summary := fmt.Sprintf("Restored version %s", versionID)
	return s.CommitVersion(ctx, artefactID, types.AuthorUser, summary, old.Content)
}
