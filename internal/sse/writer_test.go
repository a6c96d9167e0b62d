package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"anemia-detect-go/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// lockedRecorder 心跳和主流程并发写，测试里读之前加锁
type lockedRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (r *lockedRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *lockedRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Body.String()
}

func parseEvents(t *testing.T, body string) []Event {
	t.Helper()
	var events []Event
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		require.True(t, strings.HasPrefix(chunk, "data: "), chunk)
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(chunk, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestWriterStreamsSnapshots(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriterWithHeartbeat(rec, time.Hour)
	require.NoError(t, err)
	defer w.StopHeartbeat()

	require.NoError(t, w.SendSnapshot(model.Snapshot{Phase: model.PhaseSubmitting, Busy: true}))
	require.NoError(t, w.SendSnapshot(model.Snapshot{
		Phase:  model.PhaseSuccess,
		Result: &model.AnalysisResult{HasAnemia: true, Message: "El modelo sugiere presencia de anemia."},
	}))
	require.NoError(t, w.SendInvalid(model.NoticeIncomplete, []model.Field{model.FieldMCV}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "submitting", events[0].Status)
	assert.True(t, events[0].Busy)
	assert.Equal(t, "success", events[1].Status)
	assert.Equal(t, model.BranchAnemia, events[1].Branch)
	assert.Equal(t, "invalid", events[2].Status)
	assert.Equal(t, []model.Field{model.FieldMCV}, events[2].Fields)
}

func TestWriterHeartbeat(t *testing.T) {
	rec := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}
	w, err := NewWriterWithHeartbeat(rec, time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(rec.body(), `"status":"heartbeat"`)
	}, time.Second, time.Millisecond)

	w.StopHeartbeat()
	w.StopHeartbeat()
}
