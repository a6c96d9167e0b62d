package handler

import (
	"context"
	"sync"
	"time"

	"anemia-detect-go/internal/service"
)

// liveSession 进程内的活动会话，同一cookie的并发请求共用
type liveSession struct {
	*service.Session

	saveMu   sync.Mutex // 串行写存储，后写入的总是较新的快照
	lastSeen time.Time
}

// sessionRegistry 活动会话表
type sessionRegistry struct {
	mu    sync.Mutex
	items map[string]*liveSession
	now   func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		items: make(map[string]*liveSession),
		now:   time.Now,
	}
}

// get 查找活动会话并刷新访问时间
func (r *sessionRegistry) get(id string) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls, ok := r.items[id]
	if !ok {
		return nil
	}
	ls.lastSeen = r.now()
	return ls
}

// add 登记会话，已存在时返回已有的那个
func (r *sessionRegistry) add(id string, ls *liveSession) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.items[id]; ok {
		cur.lastSeen = r.now()
		return cur
	}
	ls.lastSeen = r.now()
	r.items[id] = ls
	return ls
}

// sweep 移除空闲超过idle且没有请求在进行中的会话
func (r *sessionRegistry) sweep(idle time.Duration) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	var n int64
	for id, ls := range r.items {
		if ls.lastSeen.Before(cutoff) && !ls.Busy() {
			delete(r.items, id)
			n++
		}
	}
	return n
}

// CleanExpired 清理空闲的活动会话，存储中的快照仍可恢复
func (h *AnalysisHandler) CleanExpired(ctx context.Context) (int64, error) {
	return h.live.sweep(h.sessionTTL), nil
}
