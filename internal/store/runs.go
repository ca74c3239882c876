package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"inkwright/internal/types"
)

// CreateRun inserts a new running AgentRun, enforcing mutual exclusion: if
// another run on the same artefact is still running, no row is created and
// a ConflictError is returned.
func (s *Store) CreateRun(ctx context.Context, projectID, artefactID string, agentType types.AgentType) (*types.AgentRun, error) {
	if !agentType.Valid() {
		return nil, &types.ConfigError{Detail: fmt.Sprintf("unknown agent type %q", agentType)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var activeID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM agent_runs WHERE artefact_id = ? AND status = 'running'`, artefactID).Scan(&activeID)
	switch {
	case err == nil:
		return nil, &types.ConflictError{ArtefactID: artefactID, ActiveRun: activeID}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	run := &types.AgentRun{
		ID:         s.NewID(),
		ProjectID:  projectID,
		ArtefactID: artefactID,
		AgentType:  agentType,
		Status:     types.RunRunning,
		StartedAt:  now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_runs (id, project_id, artefact_id, agent_type, status, iteration_count, started_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		run.ID, run.ProjectID, run.ArtefactID, string(run.AgentType), string(run.Status),
		formatTime(run.StartedAt)); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Debug("agent run created",
		zap.String("run", run.ID),
		zap.String("agent", string(agentType)),
		zap.String("artefact", artefactID))
	return run, nil
}

// FinishRun moves a run to a terminal status and records its final
// iteration count.
func (s *Store) FinishRun(ctx context.Context, runID string, status types.RunStatus, iterations int) error {
	if !status.Terminal() {
		return fmt.Errorf("finish run %s: %q is not a terminal status", runID, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_runs SET status = ?, iteration_count = ?, completed_at = ? WHERE id = ?`,
		string(status), iterations, formatTime(now()), runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*types.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, artefact_id, agent_type, status, iteration_count, started_at, completed_at
		 FROM agent_runs WHERE id = ?`, id)
	return scanRun(row, id)
}

// ActiveRun returns the running run for an artefact, or ErrNotFound.
func (s *Store) ActiveRun(ctx context.Context, artefactID string) (*types.AgentRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, artefact_id, agent_type, status, iteration_count, started_at, completed_at
		 FROM agent_runs WHERE artefact_id = ? AND status = 'running'`, artefactID)
	return scanRun(row, "active for "+artefactID)
}

// ListRuns returns all runs for a project, newest first.
func (s *Store) ListRuns(ctx context.Context, projectID string) ([]types.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, artefact_id, agent_type, status, iteration_count, started_at, completed_at
		 FROM agent_runs WHERE project_id = ? ORDER BY id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AgentRun
	for rows.Next() {
		r, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AppendRunLog appends one immutable transparency record to a run.
func (s *Store) AppendRunLog(ctx context.Context, log *types.AgentRunLog) error {
	if log.ID == "" {
		log.ID = s.NewID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now()
	}
	var tokens any
	if log.TokensUsed != nil {
		tokens = *log.TokensUsed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_run_logs (id, agent_run_id, iteration_index, role, content, tokens_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AgentRunID, log.IterationIndex, string(log.Role), log.Content, tokens,
		formatTime(log.CreatedAt))
	return err
}

// RunLogs returns a run's logs ordered by iteration index then insertion
// order (ULID ids preserve insertion order within an iteration).
func (s *Store) RunLogs(ctx context.Context, runID string) ([]types.AgentRunLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_run_id, iteration_index, role, content, tokens_used, created_at
		 FROM agent_run_logs WHERE agent_run_id = ? ORDER BY iteration_index, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.AgentRunLog
	for rows.Next() {
		var l types.AgentRunLog
		var tokens sql.NullInt64
		var created string
		if err := rows.Scan(&l.ID, &l.AgentRunID, &l.IterationIndex, &l.Role, &l.Content, &tokens, &created); err != nil {
			return nil, err
		}
		if tokens.Valid {
			n := int(tokens.Int64)
			l.TokensUsed = &n
		}
		l.CreatedAt = parseTime(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRun(row *sql.Row, ref string) (*types.AgentRun, error) {
	var r types.AgentRun
	var started string
	var completed sql.NullString
	if err := row.Scan(&r.ID, &r.ProjectID, &r.ArtefactID, &r.AgentType, &r.Status,
		&r.IterationCount, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", ref, types.ErrNotFound)
		}
		return nil, err
	}
	r.StartedAt = parseTime(started)
	if completed.Valid {
		t := parseTime(completed.String)
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanRunRows(rows *sql.Rows) (*types.AgentRun, error) {
	var r types.AgentRun
	var started string
	var completed sql.NullString
	if err := rows.Scan(&r.ID, &r.ProjectID, &r.ArtefactID, &r.AgentType, &r.Status,
		&r.IterationCount, &started, &completed); err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	if completed.Valid {
		t := parseTime(completed.String)
		r.CompletedAt = &t
	}
	return &r, nil
}
