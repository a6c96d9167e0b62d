package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"anemia-detect-go/internal/model"
)

// DefaultHeartbeat 心跳间隔
const DefaultHeartbeat = 15 * time.Second

// Event 推送给前端的一条状态
type Event struct {
	Status string                `json:"status"` // idle/submitting/success/failed/invalid/heartbeat
	Busy   bool                  `json:"busy"`
	Branch model.Branch          `json:"branch,omitempty"`
	Result *model.AnalysisResult `json:"result,omitempty"`
	Notice string                `json:"notice,omitempty"`
	Fields []model.Field         `json:"fields,omitempty"`
}

// Writer SSE写入器
type Writer struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	mu        sync.Mutex
	last      Event
	stopHeart chan struct{}
	stopOnce  sync.Once
}

// NewWriter 创建SSE写入器
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	return NewWriterWithHeartbeat(w, DefaultHeartbeat)
}

// NewWriterWithHeartbeat 指定心跳间隔
func NewWriterWithHeartbeat(w http.ResponseWriter, interval time.Duration) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writer := &Writer{
		w:         w,
		flusher:   flusher,
		last:      Event{Status: string(model.PhaseIdle)},
		stopHeart: make(chan struct{}),
	}

	// 启动心跳
	go writer.heartbeat(interval)

	return writer, nil
}

// heartbeat 定期发送心跳保持连接
func (s *Writer) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.write(Event{Status: "heartbeat", Busy: s.last.Busy})
			s.mu.Unlock()
		case <-s.stopHeart:
			return
		}
	}
}

// StopHeartbeat 停止心跳，可重复调用
func (s *Writer) StopHeartbeat() {
	s.stopOnce.Do(func() { close(s.stopHeart) })
}

func (s *Writer) write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendSnapshot 推送一次状态变化
func (s *Writer) SendSnapshot(snap model.Snapshot) error {
	ev := Event{
		Status: string(snap.Phase),
		Busy:   snap.Busy,
		Result: snap.Result,
		Notice: snap.Notice,
	}
	if snap.Result != nil {
		ev.Branch = snap.Result.Branch()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ev
	return s.write(ev)
}

// SendInvalid 本地校验失败
func (s *Writer) SendInvalid(notice string, fields []model.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{Status: "invalid", Notice: notice, Fields: fields}
	s.last = ev
	return s.write(ev)
}
