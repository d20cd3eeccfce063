package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, session Session) error {
	const query = `
INSERT INTO sessions (
	id, user_id, file_name, storage_key, mime_type, resume_text, job_description, target_role,
	status, stage, progress, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		nullable(session.FileName),
		nullable(session.StorageKey),
		nullable(session.MimeType),
		session.ResumeText,
		session.JobDescription,
		nullable(session.TargetRole),
		session.Status,
		session.Stage,
		session.Progress,
		session.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	const query = `
SELECT id, user_id, file_name, storage_key, mime_type, resume_text, job_description, target_role,
       status, stage, progress, resume_data, job_data, match_result, prep_plan,
       error_code, error_message, started_at, completed_at, created_at, updated_at
FROM sessions
WHERE id = $1
LIMIT 1`
	var s Session
	var fileName, storageKey, mimeType, targetRole sql.NullString
	var resumeData, jobData, matchResult, prepPlan sql.NullString
	var errorCode, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&s.ID, &s.UserID, &fileName, &storageKey, &mimeType, &s.ResumeText, &s.JobDescription, &targetRole,
		&s.Status, &s.Stage, &s.Progress, &resumeData, &jobData, &matchResult, &prepPlan,
		&errorCode, &errorMessage, &startedAt, &completedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.FileName = fileName.String
	s.StorageKey = storageKey.String
	s.MimeType = mimeType.String
	s.TargetRole = targetRole.String
	if s.ResumeData, err = unmarshalJSONB(resumeData); err != nil {
		return Session{}, err
	}
	if s.JobData, err = unmarshalJSONB(jobData); err != nil {
		return Session{}, err
	}
	if s.MatchResult, err = unmarshalJSONB(matchResult); err != nil {
		return Session{}, err
	}
	if s.PrepPlan, err = unmarshalJSONB(prepPlan); err != nil {
		return Session{}, err
	}
	if errorCode.Valid {
		s.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		s.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		s.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, user_id, file_name, job_description, target_role, status, stage, progress,
       error_code, created_at, updated_at
FROM sessions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		var s Session
		var fileName, targetRole, errorCode sql.NullString
		if err := rows.Scan(&s.ID, &s.UserID, &fileName, &s.JobDescription, &targetRole,
			&s.Status, &s.Stage, &s.Progress, &errorCode, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.FileName = fileName.String
		s.TargetRole = targetRole.String
		if errorCode.Valid {
			s.ErrorCode = &errorCode.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdateStage(ctx context.Context, sessionID, stage string, progress int) error {
	return r.exec(ctx, `UPDATE sessions SET stage = $1, progress = $2, updated_at = now() WHERE id = $3`,
		stage, progress, sessionID)
}

func (r *PGRepo) SaveResumeText(ctx context.Context, sessionID, text string) error {
	return r.exec(ctx, `UPDATE sessions SET resume_text = $1, updated_at = now() WHERE id = $2`,
		text, sessionID)
}

// SaveArtifact writes one pipeline output to its jsonb column. The column name
// is validated against a fixed set, never interpolated from caller input.
func (r *PGRepo) SaveArtifact(ctx context.Context, sessionID, artifact string, value map[string]any) error {
	switch artifact {
	case ArtifactResumeData, ArtifactJobData, ArtifactMatchResult, ArtifactPrepPlan:
	default:
		return fmt.Errorf("unknown artifact %q", artifact)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE sessions SET %s = $1, updated_at = now() WHERE id = $2`, artifact)
	return r.exec(ctx, query, string(payload), sessionID)
}

func (r *PGRepo) MarkProcessing(ctx context.Context, sessionID string, startedAt time.Time) error {
	return r.exec(ctx, `
UPDATE sessions SET status = $1, started_at = $2, updated_at = now() WHERE id = $3`,
		StatusProcessing, startedAt, sessionID)
}

func (r *PGRepo) MarkCompleted(ctx context.Context, sessionID string, completedAt time.Time) error {
	return r.exec(ctx, `
UPDATE sessions
SET status = $1, stage = $2, progress = $3, error_code = NULL, error_message = NULL,
    completed_at = $4, updated_at = now()
WHERE id = $5`,
		StatusCompleted, StageCompleted, ProgressFor(StageCompleted), completedAt, sessionID)
}

func (r *PGRepo) MarkFailed(ctx context.Context, sessionID, code, message string, completedAt time.Time) error {
	return r.exec(ctx, `
UPDATE sessions
SET status = $1, error_code = $2, error_message = $3, completed_at = $4, updated_at = now()
WHERE id = $5`,
		StatusFailed, code, message, completedAt, sessionID)
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func unmarshalJSONB(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
