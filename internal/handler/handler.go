package handler

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/session"
)

// SessionCookie 会话cookie名
const SessionCookie = "anemia_sid"

//go:embed templates/*.html
var templateFS embed.FS

// Backend 分析后端需要同时支持分析和健康检查
type Backend interface {
	fetcher.Analyzer
	fetcher.Pinger
}

// AnalysisHandler 贫血分析HTTP处理器
type AnalysisHandler struct {
	backend    Backend
	store      session.Store
	sessionTTL time.Duration
	logger     *zap.Logger
	pages      map[string]*template.Template
	live       *sessionRegistry
}

// NewAnalysisHandler 创建处理器
func NewAnalysisHandler(backend Backend, store session.Store, sessionTTL time.Duration, logger *zap.Logger) (*AnalysisHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &AnalysisHandler{
		backend:    backend,
		store:      store,
		sessionTTL: sessionTTL,
		logger:     logger,
		pages:      pages,
		live:       newSessionRegistry(),
	}, nil
}

// Register 注册路由
func (h *AnalysisHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Landing)
	mux.HandleFunc("GET /analisis", h.AnalysisPage)
	mux.HandleFunc("POST /analisis", h.SubmitForm)
	mux.HandleFunc("POST /analisis/reset", h.ResetForm)
	mux.HandleFunc("POST /api/analizar-anemia", h.AnalyzeJSON)
	mux.HandleFunc("POST /api/analizar-anemia/sse", h.AnalyzeSSE)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("/", h.NotFound)
}

// Routes 返回带CORS的完整路由
func (h *AnalysisHandler) Routes(origins []string) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return CORSMiddleware(origins, mux)
}

// loadSession 按cookie取出会话，没有则新建
func (h *AnalysisHandler) loadSession(w http.ResponseWriter, r *http.Request) (string, *liveSession) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value, h.openSession(r.Context(), c.Value)
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, h.attach(id, service.NewSession(h.backend, h.logger))
}

// openSession 优先使用进程内的活动会话，其次从存储恢复
func (h *AnalysisHandler) openSession(ctx context.Context, id string) *liveSession {
	if ls := h.live.get(id); ls != nil {
		return ls
	}

	entry, err := h.store.Get(ctx, id)
	if err != nil {
		h.logger.Warn("failed to load session", zap.String("session", id), zap.Error(err))
	}
	if entry != nil {
		return h.attach(id, service.RestoreSession(h.backend, h.logger, entry.Snapshot))
	}
	return h.attach(id, service.NewSession(h.backend, h.logger))
}

// attach 登记会话，每次状态变化都写入存储
func (h *AnalysisHandler) attach(id string, s *service.Session) *liveSession {
	ls := &liveSession{Session: s}
	s.Observe(func(model.Snapshot) {
		h.saveSession(context.Background(), id, ls)
	})
	return h.live.add(id, ls)
}

// saveSession 保存会话当前快照，空状态直接删除，失败只记录日志
func (h *AnalysisHandler) saveSession(ctx context.Context, id string, ls *liveSession) {
	ls.saveMu.Lock()
	defer ls.saveMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	snap := ls.Snapshot()
	var err error
	if snap.Empty() {
		err = h.store.Delete(ctx, id)
	} else {
		err = h.store.Set(ctx, id, snap, h.sessionTTL)
	}
	if err != nil {
		h.logger.Warn("failed to save session", zap.String("session", id), zap.Error(err))
	}
}

// CORSMiddleware CORS中间件
func CORSMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
