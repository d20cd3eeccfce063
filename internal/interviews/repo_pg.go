package interviews

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const interviewColumns = `
id, user_id, session_id, interview_type, status, conversation,
resume_snapshot, job_snapshot, analysis_status, analysis, analysis_error,
suggested_answers, started_at, ended_at, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, interview Interview) error {
	conversation, err := json.Marshal(interview.Conversation)
	if err != nil {
		return err
	}
	resumeSnapshot, err := json.Marshal(interview.ResumeSnapshot)
	if err != nil {
		return err
	}
	jobSnapshot, err := json.Marshal(interview.JobSnapshot)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO interviews (
	id, user_id, session_id, interview_type, status, conversation,
	resume_snapshot, job_snapshot, analysis_status, started_at, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`
	_, err = r.DB.ExecContext(ctx, query,
		interview.ID,
		interview.UserID,
		interview.SessionID,
		interview.InterviewType,
		interview.Status,
		string(conversation),
		string(resumeSnapshot),
		string(jobSnapshot),
		interview.AnalysisStatus,
		interview.StartedAt,
		interview.CreatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, interviewID string) (Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1 LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, interviewID)
	interview, err := scanInterview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Interview{}, ErrNotFound
		}
		return Interview{}, err
	}
	return interview, nil
}

func (r *PGRepo) ListBySession(ctx context.Context, sessionID string) ([]Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE session_id = $1 ORDER BY started_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Interview{}
	for rows.Next() {
		interview, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, interview)
	}
	return out, rows.Err()
}

// AppendTurn appends to the conversation jsonb array in place so concurrent
// appends from the two sides of the exchange cannot clobber each other.
func (r *PGRepo) AppendTurn(ctx context.Context, interviewID string, turn Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
UPDATE interviews
SET conversation = conversation || $1::jsonb, updated_at = now()
WHERE id = $2`,
		string(payload), interviewID)
}

// MarkEnded only flips rows that are still active, so concurrent ends resolve
// to a single winner. A miss on an existing row means someone ended it first.
func (r *PGRepo) MarkEnded(ctx context.Context, interviewID string, endedAt time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
UPDATE interviews
SET status = $1, analysis_status = $2, ended_at = $3, updated_at = now()
WHERE id = $4 AND status = $5`,
		StatusCompleted, AnalysisProcessing, endedAt, interviewID, StatusActive)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, interviewID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *PGRepo) SaveAnalysis(ctx context.Context, interviewID string, analysis map[string]any) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
UPDATE interviews
SET analysis = $1, analysis_status = $2, analysis_error = NULL, updated_at = now()
WHERE id = $3`,
		string(payload), AnalysisCompleted, interviewID)
}

func (r *PGRepo) SaveSuggestedAnswers(ctx context.Context, interviewID string, suggestions map[string]any) error {
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
UPDATE interviews SET suggested_answers = $1, updated_at = now() WHERE id = $2`,
		string(payload), interviewID)
}

func (r *PGRepo) MarkAnalysisFailed(ctx context.Context, interviewID string, errMsg string) error {
	return r.exec(ctx, `
UPDATE interviews SET analysis_status = $1, analysis_error = $2, updated_at = now() WHERE id = $3`,
		AnalysisFailed, errMsg, interviewID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (Interview, error) {
	var iv Interview
	var conversation, resumeSnapshot, jobSnapshot sql.NullString
	var analysis, suggested sql.NullString
	var analysisError sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(
		&iv.ID, &iv.UserID, &iv.SessionID, &iv.InterviewType, &iv.Status, &conversation,
		&resumeSnapshot, &jobSnapshot, &iv.AnalysisStatus, &analysis, &analysisError,
		&suggested, &iv.StartedAt, &endedAt, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		return Interview{}, err
	}
	if conversation.Valid && conversation.String != "" {
		if err := json.Unmarshal([]byte(conversation.String), &iv.Conversation); err != nil {
			return Interview{}, err
		}
	}
	if iv.ResumeSnapshot, err = unmarshalObject(resumeSnapshot); err != nil {
		return Interview{}, err
	}
	if iv.JobSnapshot, err = unmarshalObject(jobSnapshot); err != nil {
		return Interview{}, err
	}
	if iv.Analysis, err = unmarshalObject(analysis); err != nil {
		return Interview{}, err
	}
	if iv.SuggestedAnswers, err = unmarshalObject(suggested); err != nil {
		return Interview{}, err
	}
	if analysisError.Valid {
		iv.AnalysisError = &analysisError.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		iv.EndedAt = &t
	}
	return iv, nil
}

func unmarshalObject(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
