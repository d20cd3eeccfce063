package sessions

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"interview-backend/internal/llm"
	"interview-backend/internal/shared/storage/object/local"
	"interview-backend/internal/usage"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	if s.calls >= len(s.responses) {
		return "", errors.New("no scripted response left")
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

type staticPlans struct{ plan string }

func (p staticPlans) PlanFor(ctx context.Context, userID string) (string, error) {
	return p.plan, nil
}

func happyPathResponses() []string {
	questions := make([]string, 16)
	for i := range questions {
		questions[i] = fmt.Sprintf("%q", fmt.Sprintf("question %d", i+1))
	}
	plan := fmt.Sprintf(`{"summary":"prep","likelyQuestions":[%s]}`, strings.Join(questions, ","))
	return []string{
		`{"name":"Asha Rao","skills":["go","sql"]}`,
		`{"title":"Backend Engineer","requiredSkills":["go"]}`,
		`{"matchScore":82,"strengths":["go"],"gaps":[]}`,
		plan,
	}
}

func newTestService(client llm.Client) *Service {
	return &Service{
		Repo:  NewMemoryRepo(),
		Usage: usage.NewService(),
		Plans: staticPlans{plan: usage.PlanPro},
		LLM:   client,
	}
}

func seedSession(t *testing.T, svc *Service, text string) Session {
	t.Helper()
	session := Session{
		ID:             "sess-1",
		UserID:         "user-1",
		ResumeText:     text,
		JobDescription: "Backend engineer role building Go services.",
		Status:         StatusQueued,
		Stage:          StageCreated,
		Progress:       ProgressFor(StageCreated),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := svc.Repo.Create(context.Background(), session); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

const sampleResume = "Asha Rao. Senior backend engineer with eight years of Go, Postgres, and AWS experience across payments and infra teams."

func TestProcessSessionCompletesPipeline(t *testing.T) {
	client := &scriptedLLM{responses: happyPathResponses()}
	svc := newTestService(client)
	seedSession(t, svc, sampleResume)

	if err := svc.ProcessSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}

	got, err := svc.Repo.GetByID(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", got.Status, StatusCompleted)
	}
	if got.Stage != StageCompleted || got.Progress != 100 {
		t.Fatalf("stage/progress = %s/%d, want completed/100", got.Stage, got.Progress)
	}
	if got.ResumeData["name"] != "Asha Rao" {
		t.Fatalf("resume data not saved: %v", got.ResumeData)
	}
	if got.MatchResult["matchScore"] != float64(82) {
		t.Fatalf("match result not saved: %v", got.MatchResult)
	}
	if got.PrepPlan == nil {
		t.Fatal("prep plan not saved")
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Fatal("timestamps not set")
	}
	if client.calls != 4 {
		t.Fatalf("llm calls = %d, want 4", client.calls)
	}
}

func TestProcessSessionFailsWhenNameMissing(t *testing.T) {
	responses := happyPathResponses()
	responses[0] = `{"skills":["go"]}`
	svc := newTestService(&scriptedLLM{responses: responses})
	seedSession(t, svc, sampleResume)

	if err := svc.ProcessSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected failure for missing name")
	}

	got, _ := svc.Repo.GetByID(context.Background(), "sess-1")
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, StatusFailed)
	}
	if got.ErrorCode == nil || *got.ErrorCode != ErrorCodeLLMSchemaMismatch {
		t.Fatalf("error code = %v, want %s", got.ErrorCode, ErrorCodeLLMSchemaMismatch)
	}
}

func TestProcessSessionFailsOnDegradedMatch(t *testing.T) {
	responses := happyPathResponses()
	responses[2] = `{"error":"resume is not relevant to this job"}`
	svc := newTestService(&scriptedLLM{responses: responses})
	seedSession(t, svc, sampleResume)

	if err := svc.ProcessSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected failure for degraded match")
	}

	got, _ := svc.Repo.GetByID(context.Background(), "sess-1")
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, StatusFailed)
	}
	if got.ErrorCode == nil || *got.ErrorCode != ErrorCodeLLMSchemaMismatch {
		t.Fatalf("error code = %v, want %s", got.ErrorCode, ErrorCodeLLMSchemaMismatch)
	}
	if got.MatchResult == nil || got.MatchResult["error"] == nil {
		t.Fatal("degraded match result should still be persisted")
	}
}

func TestProcessSessionFailsOnShortResume(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	seedSession(t, svc, "too short")

	if err := svc.ProcessSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected validation failure")
	}

	got, _ := svc.Repo.GetByID(context.Background(), "sess-1")
	if got.ErrorCode == nil || *got.ErrorCode != ErrorCodeValidation {
		t.Fatalf("error code = %v, want %s", got.ErrorCode, ErrorCodeValidation)
	}
}

func TestCreateBlocksWhenLimitReached(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: happyPathResponses()})
	svc.Plans = staticPlans{plan: usage.PlanFree}
	ctx := context.Background()

	// Free allows two analyses; burn both, then expect the gate to close.
	for i := 0; i < 2; i++ {
		if _, err := svc.Usage.Consume(ctx, "user-2", usage.PlanFree, usage.FeatureResumeAnalyses); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	_, err := svc.Create(ctx, "user-2", CreateInput{
		ResumeText:     sampleResume,
		JobDescription: "Backend engineer role.",
	})
	if !errors.Is(err, usage.ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
}

func TestCreateRequiresJobDescription(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	_, err := svc.Create(context.Background(), "user-1", CreateInput{ResumeText: sampleResume})
	if err == nil || !strings.Contains(err.Error(), "job description") {
		t.Fatalf("err = %v, want job description validation", err)
	}
}

func TestCreateConsumesQuota(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: happyPathResponses()})
	ctx := context.Background()

	session, err := svc.Create(ctx, "user-3", CreateInput{
		ResumeText:     sampleResume,
		JobDescription: "Backend engineer role.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.Status != StatusQueued {
		t.Fatalf("status = %s, want %s", session.Status, StatusQueued)
	}

	snap, err := svc.Usage.Get(ctx, "user-3", usage.PlanPro)
	if err != nil {
		t.Fatalf("usage get: %v", err)
	}
	if snap.Features[usage.FeatureResumeAnalyses].Used != 1 {
		t.Fatalf("used = %d, want 1", snap.Features[usage.FeatureResumeAnalyses].Used)
	}

	// Let the background pipeline settle before the repo is torn down.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.Repo.GetByID(ctx, session.ID)
		if err == nil && (got.Status == StatusCompleted || got.Status == StatusFailed) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pipeline did not finish")
}

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func docxPayload(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	if _, err := fmt.Fprintf(w, `<?xml version="1.0"?><document><body><p><t>%s</t></p></body></document>`, text); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func countStoredFiles(t *testing.T, baseDir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk store dir: %v", err)
	}
	return count
}

func newStoredTestService(t *testing.T, client llm.Client) (*Service, string) {
	t.Helper()
	svc := newTestService(client)
	baseDir := t.TempDir()
	svc.Store = local.New(baseDir)
	svc.JobQueue = &captureQueue{}
	return svc, baseDir
}

func TestProcessSessionExtractsStagedUploadAndCleansUp(t *testing.T) {
	svc, baseDir := newStoredTestService(t, &scriptedLLM{responses: happyPathResponses()})
	ctx := context.Background()

	session, err := svc.Create(ctx, "user-1", CreateInput{
		FileName:       "resume.docx",
		FileData:       docxPayload(t, sampleResume),
		MimeType:       docxMime,
		JobDescription: "Backend engineer role.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.StorageKey == "" {
		t.Fatal("expected a staged upload key")
	}
	if session.ResumeText != "" {
		t.Fatal("text extraction should wait for the worker")
	}
	stagedPath := filepath.Join(baseDir, session.StorageKey)
	if _, err := os.Stat(stagedPath); err != nil {
		t.Fatalf("staged upload missing before processing: %v", err)
	}

	if err := svc.ProcessSession(ctx, session.ID); err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}

	got, err := svc.Repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", got.Status, StatusCompleted)
	}
	if !strings.Contains(got.ResumeText, "Asha Rao") {
		t.Fatalf("extracted resume text not persisted: %q", got.ResumeText)
	}
	if _, err := os.Stat(stagedPath); !os.IsNotExist(err) {
		t.Fatalf("staged upload should be removed after processing, stat err = %v", err)
	}
	if _, err := os.Stat(stagedPath + ".extracted.txt"); err != nil {
		t.Fatalf("extracted text copy missing: %v", err)
	}
}

func TestProcessSessionCleansUpStagedUploadOnFailure(t *testing.T) {
	svc, baseDir := newStoredTestService(t, &scriptedLLM{})
	ctx := context.Background()

	session, err := svc.Create(ctx, "user-1", CreateInput{
		FileName:       "resume.docx",
		FileData:       docxPayload(t, "too short"),
		MimeType:       docxMime,
		JobDescription: "Backend engineer role.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stagedPath := filepath.Join(baseDir, session.StorageKey)

	if err := svc.ProcessSession(ctx, session.ID); err == nil {
		t.Fatal("expected validation failure for short extraction")
	}

	got, err := svc.Repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, StatusFailed)
	}
	if got.ErrorCode == nil || *got.ErrorCode != ErrorCodeValidation {
		t.Fatalf("error code = %v, want %s", got.ErrorCode, ErrorCodeValidation)
	}
	if got.Stage != StageExtracting || got.Progress != ProgressFor(StageExtracting) {
		t.Fatalf("stage/progress = %s/%d, want frozen at %s/%d", got.Stage, got.Progress, StageExtracting, ProgressFor(StageExtracting))
	}
	if _, err := os.Stat(stagedPath); !os.IsNotExist(err) {
		t.Fatalf("staged upload should be removed after failure, stat err = %v", err)
	}
}

func TestCreateOverLimitStagesNothing(t *testing.T) {
	svc, baseDir := newStoredTestService(t, &scriptedLLM{})
	svc.Plans = staticPlans{plan: usage.PlanFree}
	ctx := context.Background()

	limit := usage.PlanLimits(usage.PlanFree)[usage.FeatureResumeAnalyses]
	for i := 0; i < limit; i++ {
		if _, err := svc.Usage.Consume(ctx, "user-2", usage.PlanFree, usage.FeatureResumeAnalyses); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	_, err := svc.Create(ctx, "user-2", CreateInput{
		FileName:       "resume.docx",
		FileData:       docxPayload(t, sampleResume),
		MimeType:       docxMime,
		JobDescription: "Backend engineer role.",
	})
	var limitErr *usage.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("err = %v, want *usage.LimitError", err)
	}
	if limitErr.Used != limit || limitErr.Limit != limit || limitErr.Plan != usage.PlanFree {
		t.Fatalf("limit error = %+v, want used=%d limit=%d plan=%s", limitErr, limit, limit, usage.PlanFree)
	}

	if n := countStoredFiles(t, baseDir); n != 0 {
		t.Fatalf("refused create should stage nothing, found %d files", n)
	}
}

// allowingStore admits every check but refuses to record consumption.
type allowingStore struct{ incrementErr error }

func (s allowingStore) Get(ctx context.Context, userID, plan string) (map[string]usage.FeatureUsage, error) {
	out := make(map[string]usage.FeatureUsage)
	for feature, limit := range usage.PlanLimits(plan) {
		out[feature] = usage.FeatureUsage{Used: 0, Limit: limit}
	}
	return out, nil
}

func (s allowingStore) Increment(ctx context.Context, userID, plan, feature string, n int) (usage.FeatureUsage, error) {
	return usage.FeatureUsage{}, s.incrementErr
}

func (s allowingStore) Grant(ctx context.Context, userID, plan, feature string, delta int) (usage.FeatureUsage, error) {
	return usage.FeatureUsage{}, nil
}

func (s allowingStore) Reset(ctx context.Context, userID, plan string) error { return nil }

func TestCreatePersistsNothingWhenConsumeFails(t *testing.T) {
	svc, baseDir := newStoredTestService(t, &scriptedLLM{})
	svc.Usage = usage.NewPostgresService(allowingStore{incrementErr: errors.New("usage store down")})
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CreateInput{
		FileName:       "resume.docx",
		FileData:       docxPayload(t, sampleResume),
		MimeType:       docxMime,
		JobDescription: "Backend engineer role.",
	})
	if err == nil || !strings.Contains(err.Error(), "usage store down") {
		t.Fatalf("err = %v, want consume failure", err)
	}

	sessions, err := svc.Repo.ListByUser(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("no session should exist after consume failure, got %d", len(sessions))
	}
	if n := countStoredFiles(t, baseDir); n != 0 {
		t.Fatalf("staged upload should be removed after consume failure, found %d files", n)
	}
}

func TestGetRejectsOtherUsers(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	seedSession(t, svc, sampleResume)

	if _, err := svc.Get(context.Background(), "someone-else", "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStalledOnlyWhileProcessing(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	svc.StaleAfter = time.Minute
	now := time.Now().UTC()

	session := Session{Status: StatusProcessing, UpdatedAt: now.Add(-2 * time.Minute)}
	if !svc.Stalled(session, now) {
		t.Fatal("processing session past the window should be stalled")
	}
	session.UpdatedAt = now.Add(-10 * time.Second)
	if svc.Stalled(session, now) {
		t.Fatal("recently updated session should not be stalled")
	}
	session.Status = StatusCompleted
	session.UpdatedAt = now.Add(-time.Hour)
	if svc.Stalled(session, now) {
		t.Fatal("completed session should never be stalled")
	}
}

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New("validation: resume text too short"), ErrorCodeValidation},
		{fmt.Errorf("llm parse resume: %w", context.DeadlineExceeded), ErrorCodeLLMTimeout},
		{errors.New("llm output invalid: no json object"), ErrorCodeLLMSchemaMismatch},
		{errors.New("save resume data: connection refused"), ErrorCodeStorage},
		{errors.New("set stage matching failed: timeout"), ErrorCodeStorage},
		{errors.New("panic: runtime error"), ErrorCodeInternal},
	}
	for _, tc := range cases {
		if got := classifyFailure(tc.err); got != tc.want {
			t.Errorf("classifyFailure(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSanitizeErrorTruncates(t *testing.T) {
	long := strings.Repeat("x", 800)
	got := sanitizeError(errors.New("first line\nsecond line " + long))
	if strings.Contains(got, "\n") {
		t.Fatal("newlines should be stripped")
	}
	if len(got) != 500 {
		t.Fatalf("len = %d, want 500", len(got))
	}
}

func completedSessionWithArtifacts() Session {
	return Session{
		ID:             "sess-done",
		UserID:         "user-1",
		JobDescription: "Backend engineer role.",
		Status:         StatusCompleted,
		Stage:          StageCompleted,
		Progress:       100,
		ResumeData:     map[string]any{"name": "Asha Rao"},
		JobData:        map[string]any{"title": "Backend Engineer"},
		MatchResult:    map[string]any{"matchScore": float64(82)},
		PrepPlan:       map[string]any{"focusAreas": []any{}},
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestTimelineRequiresPrepPlan(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	session := completedSessionWithArtifacts()
	session.PrepPlan = nil
	if err := svc.Repo.Create(context.Background(), session); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Timeline(context.Background(), "user-1", "sess-done", 7); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestTimelineValidatesDayRange(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	for _, days := range []int{0, -1, 91} {
		if _, err := svc.Timeline(context.Background(), "user-1", "sess-done", days); err == nil || !strings.Contains(err.Error(), "between 1 and 90") {
			t.Fatalf("days=%d err = %v, want range validation", days, err)
		}
	}
}

func TestTimelineReturnsParsedPlan(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{
		`{"timeline":[{"day":1,"focus":"fundamentals","schedule":[],"notes":""}],"estimatedTotalHours":12}`,
	}})
	if err := svc.Repo.Create(context.Background(), completedSessionWithArtifacts()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	timeline, err := svc.Timeline(context.Background(), "user-1", "sess-done", 7)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	entries, ok := timeline["timeline"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("timeline = %v", timeline)
	}
}

func TestTimelineRejectsMissingTimelineKey(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{`{"oops":true}`, `{"still":"wrong"}`}})
	if err := svc.Repo.Create(context.Background(), completedSessionWithArtifacts()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Timeline(context.Background(), "user-1", "sess-done", 7); err == nil {
		t.Fatal("expected error for missing timeline key")
	}
}

func TestRewriteRequiresCompletedRun(t *testing.T) {
	svc := newTestService(&scriptedLLM{})
	seedSession(t, svc, sampleResume)

	if _, err := svc.Rewrite(context.Background(), "user-1", "sess-1", "experience"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestRewriteReturnsImprovedSection(t *testing.T) {
	svc := newTestService(&scriptedLLM{responses: []string{
		`{"original":"built things","improved":"Engineered Go services","explanations":[]}`,
	}})
	if err := svc.Repo.Create(context.Background(), completedSessionWithArtifacts()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rewrite, err := svc.Rewrite(context.Background(), "user-1", "sess-done", "experience")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if rewrite["improved"] != "Engineered Go services" {
		t.Fatalf("rewrite = %v", rewrite)
	}
}

func TestSummaryOnlyForCompletedRuns(t *testing.T) {
	session := completedSessionWithArtifacts()
	summary := Summary(session)
	if summary == nil {
		t.Fatal("expected summary for completed session")
	}
	if summary["name"] != "Asha Rao" || summary["matchScore"] != float64(82) || summary["prepPlanComplete"] != true {
		t.Fatalf("summary = %v", summary)
	}

	session.Status = StatusProcessing
	if Summary(session) != nil {
		t.Fatal("summary should be nil for in-flight sessions")
	}
}
