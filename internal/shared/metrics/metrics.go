package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	sessionStartedTotal   atomic.Uint64
	sessionCompletedTotal atomic.Uint64
	sessionFailedTotal    atomic.Uint64

	interviewStartedTotal   atomic.Uint64
	interviewCompletedTotal atomic.Uint64
	interviewTurnsTotal     atomic.Uint64

	settlementCompletedTotal atomic.Uint64

	pipelineJobsReceivedTotal             atomic.Uint64
	pipelineJobsCompletedTotal            atomic.Uint64
	pipelineJobsFailedTotal               atomic.Uint64
	pipelineJobsDeletedUnrecoverableTotal atomic.Uint64

	sessionDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
	llmDuration     = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncSessionStarted increments the pipeline started counter.
func IncSessionStarted() {
	sessionStartedTotal.Add(1)
}

// IncSessionCompleted increments the pipeline completed counter.
func IncSessionCompleted() {
	sessionCompletedTotal.Add(1)
}

// IncSessionFailed increments the pipeline failed counter.
func IncSessionFailed() {
	sessionFailedTotal.Add(1)
}

// IncInterviewStarted increments the interview started counter.
func IncInterviewStarted() {
	interviewStartedTotal.Add(1)
}

// IncInterviewCompleted increments the interview completed counter.
func IncInterviewCompleted() {
	interviewCompletedTotal.Add(1)
}

// IncInterviewTurns increments the interview turn counter.
func IncInterviewTurns() {
	interviewTurnsTotal.Add(1)
}

// IncSettlementCompleted increments the payment settlement counter.
func IncSettlementCompleted() {
	settlementCompletedTotal.Add(1)
}

// IncPipelineJobsReceived increments the worker received counter.
func IncPipelineJobsReceived() {
	pipelineJobsReceivedTotal.Add(1)
}

// IncPipelineJobsCompleted increments the worker completed counter.
func IncPipelineJobsCompleted() {
	pipelineJobsCompletedTotal.Add(1)
}

// IncPipelineJobsFailed increments the worker failed counter.
func IncPipelineJobsFailed() {
	pipelineJobsFailedTotal.Add(1)
}

// IncPipelineJobsDeletedUnrecoverable counts poison messages removed from the queue.
func IncPipelineJobsDeletedUnrecoverable() {
	pipelineJobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveSessionDurationMs records a full pipeline duration in milliseconds.
func ObserveSessionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	sessionDuration.Observe(value)
}

// ObserveLLMDurationMs records a single model call duration in milliseconds.
func ObserveLLMDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	llmDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "session_started_total", "Total analysis sessions started", sessionStartedTotal.Load())
	writeCounter(&buf, "session_completed_total", "Total analysis sessions completed", sessionCompletedTotal.Load())
	writeCounter(&buf, "session_failed_total", "Total analysis sessions failed", sessionFailedTotal.Load())
	writeCounter(&buf, "interview_started_total", "Total mock interviews started", interviewStartedTotal.Load())
	writeCounter(&buf, "interview_completed_total", "Total mock interviews completed", interviewCompletedTotal.Load())
	writeCounter(&buf, "interview_turns_total", "Total interview turns exchanged", interviewTurnsTotal.Load())
	writeCounter(&buf, "settlement_completed_total", "Total payment settlements applied", settlementCompletedTotal.Load())
	writeCounter(&buf, "pipeline_jobs_received_total", "Total queue jobs received", pipelineJobsReceivedTotal.Load())
	writeCounter(&buf, "pipeline_jobs_completed_total", "Total queue jobs completed", pipelineJobsCompletedTotal.Load())
	writeCounter(&buf, "pipeline_jobs_failed_total", "Total queue jobs failed", pipelineJobsFailedTotal.Load())
	writeCounter(&buf, "pipeline_jobs_deleted_unrecoverable_total", "Total queue jobs deleted as unrecoverable", pipelineJobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "session_duration_ms", "Analysis pipeline duration in milliseconds", sessionDuration.Snapshot())
	writeHistogram(&buf, "llm_call_duration_ms", "Model call duration in milliseconds", llmDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
