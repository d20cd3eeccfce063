package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/llm"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/usage"
)

type captureQueue struct {
	messages []queue.Message
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	q.messages = append(q.messages, msg)
	return nil
}

func setupSessionRouter(t *testing.T, client llm.Client, plan string) (*gin.Engine, *Service, *captureQueue) {
	t.Helper()
	queueStub := &captureQueue{}
	svc := &Service{
		Repo:     NewMemoryRepo(),
		Usage:    usage.NewService(),
		Plans:    staticPlans{plan: plan},
		LLM:      client,
		JobQueue: queueStub,
	}
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(middleware.Auth("dev"))
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return router, svc, queueStub
}

func addGuestHeader(req *http.Request) {
	req.Header.Set("X-Guest-Id", "test-guest")
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	addGuestHeader(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionEnqueuesJob(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, svc, queueStub := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	resp := postJSON(t, router, "/api/v1/sessions", map[string]string{
		"resumeText":     sampleResume,
		"jobDescription": "Backend engineer role building Go services.",
		"targetRole":     "Backend Engineer",
	})

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Stage  string `json:"stage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected session id, got empty")
	}
	if created.Status != StatusQueued {
		t.Fatalf("expected status %s, got %q", StatusQueued, created.Status)
	}
	if len(queueStub.messages) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(queueStub.messages))
	}
	if queueStub.messages[0].SessionID != created.ID {
		t.Fatalf("queued sessionId %q does not match response %q", queueStub.messages[0].SessionID, created.ID)
	}

	stored, err := svc.Repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.UserID != "guest:test-guest" {
		t.Fatalf("expected guest owner, got %q", stored.UserID)
	}
}

func TestCreateSessionRequiresJobDescription(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, _, queueStub := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	resp := postJSON(t, router, "/api/v1/sessions", map[string]string{
		"resumeText": sampleResume,
	})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if len(queueStub.messages) != 0 {
		t.Fatalf("expected no queued messages, got %d", len(queueStub.messages))
	}
}

func TestCreateSessionRejectsOverPlanLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, svc, _ := setupSessionRouter(t, &scriptedLLM{}, usage.PlanFree)

	limit := usage.PlanLimits(usage.PlanFree)[usage.FeatureResumeAnalyses]
	for i := 0; i < limit; i++ {
		if _, err := svc.Usage.Consume(context.Background(), "guest:test-guest", usage.PlanFree, usage.FeatureResumeAnalyses); err != nil {
			t.Fatalf("consume quota: %v", err)
		}
	}

	resp := postJSON(t, router, "/api/v1/sessions", map[string]string{
		"resumeText":     sampleResume,
		"jobDescription": "Backend engineer role building Go services.",
	})

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	var decoded struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Error.Code != "limit_reached" {
		t.Fatalf("expected code limit_reached, got %q", decoded.Error.Code)
	}
	details := decoded.Error.Details
	if details["limitReached"] != true {
		t.Fatalf("details missing limitReached: %v", details)
	}
	if details["used"] != float64(limit) || details["limit"] != float64(limit) {
		t.Fatalf("details used/limit = %v/%v, want %d/%d", details["used"], details["limit"], limit, limit)
	}
	if details["plan"] != usage.PlanFree {
		t.Fatalf("details plan = %v, want %s", details["plan"], usage.PlanFree)
	}
}

func TestCreateSessionRejectsUnsupportedUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, _, _ := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "resume.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("plain text resume")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("jobDescription", "Backend engineer role building Go services."); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	addGuestHeader(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGetSessionHidesOtherUsers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, svc, _ := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	other := Session{
		ID:             "sess-other",
		UserID:         "guest:someone-else",
		ResumeText:     sampleResume,
		JobDescription: "Backend engineer role.",
		Status:         StatusQueued,
		Stage:          StageCreated,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := svc.Repo.Create(context.Background(), other); err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-other", nil)
	addGuestHeader(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestStatusIncludesSummaryWhenCompleted(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, svc, _ := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	session := completedSessionWithArtifacts()
	session.UserID = "guest:test-guest"
	if err := svc.Repo.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID+"/status", nil)
	addGuestHeader(req)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var decoded struct {
		Status   string         `json:"status"`
		Progress int            `json:"progress"`
		Summary  map[string]any `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %q", decoded.Status)
	}
	if decoded.Summary == nil {
		t.Fatalf("expected summary for completed session")
	}
	if got, ok := decoded.Summary["name"].(string); !ok || got != "Asha Rao" {
		t.Fatalf("expected summary name Asha Rao, got %v", decoded.Summary["name"])
	}
}

func TestTimelineBeforeCompletionReturns400(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, svc, _ := setupSessionRouter(t, &scriptedLLM{}, usage.PlanPro)

	session := Session{
		ID:             "sess-queued",
		UserID:         "guest:test-guest",
		ResumeText:     sampleResume,
		JobDescription: "Backend engineer role.",
		Status:         StatusProcessing,
		Stage:          StageParsing,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := svc.Repo.Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	resp := postJSON(t, router, "/api/v1/sessions/sess-queued/timeline", map[string]int{"days": 30})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	var decoded struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.Error.Code != "session_not_ready" {
		t.Fatalf("expected code session_not_ready, got %q", decoded.Error.Code)
	}
}
