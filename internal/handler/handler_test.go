package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/session"
)

type stubBackend struct {
	mu       sync.Mutex
	requests []model.AnalysisRequest
	result   *model.AnalysisResult
	err      error
	pingErr  error
	started  chan struct{} // 非nil时收到请求后通知
	gate     chan struct{} // 非nil时阻塞直到关闭
}

func (b *stubBackend) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	started, gate := b.started, b.gate
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	r := *b.result
	r.SubmittedValues = model.SubmittedValues{
		Gender: string(req.Gender), Hemoglobin: req.Hemoglobin, MCH: req.MCH, MCHC: req.MCHC, MCV: req.MCV,
	}
	return &r, nil
}

func (b *stubBackend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

func (b *stubBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newTestServer(t *testing.T, backend *stubBackend) (*httptest.Server, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	h, err := NewAnalysisHandler(backend, store, time.Hour, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h.Routes([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv, store
}

// newClient 带cookie的客户端，模拟同一个浏览器会话
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func fetchDoc(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}

func validValues() url.Values {
	return url.Values{
		"genero":      {"femenino"},
		"hemoglobina": {"10.5"},
		"mch":         {"26"},
		"mchc":        {"30"},
		"mcv":         {"78"},
	}
}

func TestLandingAndNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	doc := fetchDoc(t, resp)
	assert.Contains(t, doc.Find("#hero").Text(), "Anemia detectada a tiempo")
	href, _ := doc.Find("#start").Attr("href")
	assert.Equal(t, "/analisis", href)

	resp, err = http.Get(srv.URL + "/no-existe")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	doc = fetchDoc(t, resp)
	assert.Equal(t, "Página no encontrada.", doc.Find("#not-found").Text())
}

func TestAnalysisPageStartsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &stubBackend{})

	resp, err := newClient(t).Get(srv.URL + "/analisis")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := fetchDoc(t, resp)
	assert.Equal(t, 1, doc.Find("#analysis-form").Length())
	assert.Equal(t, 0, doc.Find("#result").Length())
	assert.Equal(t, 0, doc.Find("#notice").Length())
	assert.Equal(t, "Analizar Resultados", strings.TrimSpace(doc.Find("#submit").Text()))
	for _, field := range model.MeasurementFields {
		val, _ := doc.Find("#" + string(field)).Attr("value")
		assert.Empty(t, val)
	}
	assert.Equal(t, 0, doc.Find("#genero option[selected]").Length())
}

func TestSubmitIncompleteFormSkipsBackend(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{}}
	srv, _ := newTestServer(t, backend)

	values := validValues()
	values.Set("mchc", "")
	resp, err := newClient(t).PostForm(srv.URL+"/analisis", values)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	doc := fetchDoc(t, resp)
	assert.Equal(t, model.NoticeIncomplete, doc.Find("#notice").Text())
	assert.True(t, doc.Find("#mchc").HasClass("invalid"))
	assert.Equal(t, 0, doc.Find("#result").Length())
	assert.Zero(t, backend.calls())
}

func TestSubmitRendersAnemiaBranch(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true, Message: "El modelo sugiere presencia de anemia."}}
	srv, _ := newTestServer(t, backend)
	client := newClient(t)

	resp, err := client.PostForm(srv.URL+"/analisis", validValues())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := fetchDoc(t, resp)

	require.Equal(t, 1, backend.calls())
	assert.Equal(t, model.AnalysisRequest{Gender: model.GenderFemale, Hemoglobin: 10.5, MCH: 26, MCHC: 30, MCV: 78}, backend.requests[0])

	branch, _ := doc.Find("#result").Attr("data-branch")
	assert.Equal(t, "anemia", branch)
	assert.Equal(t, "Anemia Detectada", doc.Find("#result-title").Text())
	assert.Equal(t, "Con Anemia", doc.Find("#verdict").Text())
	assert.Equal(t, 10, doc.Find("#recommendations li").Length())
	assert.Equal(t, 3, doc.Find("#nutrition article").Length())
	assert.Contains(t, doc.Find("#values").Text(), "10.5 g/dL")
	assert.Contains(t, doc.Find("#values").Text(), "78 fL")

	// 表单值保留
	val, _ := doc.Find("#hemoglobina").Attr("value")
	assert.Equal(t, "10.5", val)
	_, selected := doc.Find(`#genero option[value="femenino"]`).Attr("selected")
	assert.True(t, selected)

	// 刷新页面仍能看到结果
	resp, err = client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	doc = fetchDoc(t, resp)
	assert.Equal(t, "Anemia Detectada", doc.Find("#result-title").Text())
}

func TestSubmitRendersNonAnemiaBranch(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: false, Message: "No hay indicios de anemia según el modelo."}}
	srv, _ := newTestServer(t, backend)

	values := validValues()
	values.Set("genero", "masculino")
	values.Set("hemoglobina", "15")
	resp, err := newClient(t).PostForm(srv.URL+"/analisis", values)
	require.NoError(t, err)
	doc := fetchDoc(t, resp)

	branch, _ := doc.Find("#result").Attr("data-branch")
	assert.Equal(t, "sin_anemia", branch)
	assert.Equal(t, "Sin Anemia", doc.Find("#verdict").Text())
	assert.Equal(t, 5, doc.Find("#recommendations li").Length())
}

func TestSubmitFailureShowsNoticeAndClearsResult(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true}}
	srv, _ := newTestServer(t, backend)
	client := newClient(t)

	resp, err := client.PostForm(srv.URL+"/analisis", validValues())
	require.NoError(t, err)
	resp.Body.Close()

	backend.mu.Lock()
	backend.err = errors.New("connection refused")
	backend.mu.Unlock()

	resp, err = client.PostForm(srv.URL+"/analisis", validValues())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	doc := fetchDoc(t, resp)

	assert.Equal(t, model.NoticeFailed, doc.Find("#notice").Text())
	assert.Equal(t, 0, doc.Find("#result").Length())
	_, disabled := doc.Find("#submit").Attr("disabled")
	assert.False(t, disabled)
}

func TestResetClearsSession(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true}}
	srv, store := newTestServer(t, backend)
	client := newClient(t)

	resp, err := client.PostForm(srv.URL+"/analisis", validValues())
	require.NoError(t, err)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp, err = client.PostForm(srv.URL+"/analisis/reset", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, "redirect to /analisis is followed")
		doc := fetchDoc(t, resp)
		assert.Equal(t, 0, doc.Find("#result").Length())
		val, _ := doc.Find("#hemoglobina").Attr("value")
		assert.Empty(t, val)
	}

	// 空状态不落库
	entry, err := store.Get(context.Background(), sessionID(t, client, srv.URL))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func sessionID(t *testing.T, client *http.Client, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	t.Fatal("session cookie not set")
	return ""
}

// startHeldSubmit 后台提交表单，后端收到请求后返回，调用release放行并等待响应
func startHeldSubmit(t *testing.T, client *http.Client, srvURL string, backend *stubBackend) (release func()) {
	t.Helper()
	started := make(chan struct{}, 1)
	gate := make(chan struct{})
	backend.mu.Lock()
	backend.started, backend.gate = started, gate
	backend.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := client.PostForm(srvURL+"/analisis", validValues())
		if err == nil {
			resp.Body.Close()
		}
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(gate)
			<-done
		})
	}
	t.Cleanup(release)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("backend did not receive the submission")
	}
	return release
}

func TestAnalysisPageShowsBusyWhileSubmitting(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true}}
	srv, _ := newTestServer(t, backend)
	client := newClient(t)

	resp, err := client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	resp.Body.Close()

	release := startHeldSubmit(t, client, srv.URL, backend)

	resp, err = client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	doc := fetchDoc(t, resp)
	_, disabled := doc.Find("#submit").Attr("disabled")
	assert.True(t, disabled)
	assert.Equal(t, "Analizando...", strings.TrimSpace(doc.Find("#submit").Text()))
	assert.Equal(t, 0, doc.Find("#result").Length())
	val, _ := doc.Find("#hemoglobina").Attr("value")
	assert.Equal(t, "10.5", val)

	release()

	resp, err = client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	doc = fetchDoc(t, resp)
	_, disabled = doc.Find("#submit").Attr("disabled")
	assert.False(t, disabled)
	assert.Equal(t, "Anemia Detectada", doc.Find("#result-title").Text())
}

func TestResetDuringSubmitDiscardsLateResult(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true}}
	srv, store := newTestServer(t, backend)
	client := newClient(t)

	resp, err := client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	resp.Body.Close()

	release := startHeldSubmit(t, client, srv.URL, backend)

	resp, err = client.PostForm(srv.URL+"/analisis/reset", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	release()

	resp, err = client.Get(srv.URL + "/analisis")
	require.NoError(t, err)
	doc := fetchDoc(t, resp)
	assert.Equal(t, 0, doc.Find("#result").Length())
	val, _ := doc.Find("#hemoglobina").Attr("value")
	assert.Empty(t, val)
	_, disabled := doc.Find("#submit").Attr("disabled")
	assert.False(t, disabled)

	entry, err := store.Get(context.Background(), sessionID(t, client, srv.URL))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCleanExpiredKeepsRecentSessions(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: false}}
	h, err := NewAnalysisHandler(backend, session.NewMemoryStore(), time.Minute, nil)
	require.NoError(t, err)

	now := time.Now()
	h.live.now = func() time.Time { return now }
	h.attach("old", service.NewSession(backend, nil))
	now = now.Add(30 * time.Second)
	h.attach("recent", service.NewSession(backend, nil))

	now = now.Add(45 * time.Second)
	n, err := h.CleanExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, h.live.get("old"))
	assert.NotNil(t, h.live.get("recent"))
}

func TestAnalyzeJSON(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: true, Message: "El modelo sugiere presencia de anemia."}}
	srv, _ := newTestServer(t, backend)

	resp, err := http.Post(srv.URL+"/api/analizar-anemia", "application/json",
		strings.NewReader(`{"genero":"femenino","hemoglobina":"10.5","mch":26,"mchc":30,"mcv":78}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result model.AnalysisResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.HasAnemia)
	assert.Equal(t, 10.5, result.SubmittedValues.Hemoglobin)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAnalyzeJSONErrors(t *testing.T) {
	backend := &stubBackend{err: errors.New("boom")}
	srv, _ := newTestServer(t, backend)

	resp, err := http.Post(srv.URL+"/api/analizar-anemia", "application/json", strings.NewReader(`{"genero":"femenino"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), model.NoticeIncomplete)
	assert.Zero(t, backend.calls())

	resp, err = http.Post(srv.URL+"/api/analizar-anemia", "application/json",
		strings.NewReader(`{"genero":"femenino","hemoglobina":10.5,"mch":26,"mchc":30,"mcv":78}`))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Error al procesar el análisis"}`, string(body))

	resp, err = http.Post(srv.URL+"/api/analizar-anemia", "application/json", strings.NewReader(`{"genero":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeSSE(t *testing.T) {
	backend := &stubBackend{result: &model.AnalysisResult{HasAnemia: false}}
	srv, _ := newTestServer(t, backend)

	resp, err := http.Post(srv.URL+"/api/analizar-anemia/sse", "application/json",
		strings.NewReader(`{"genero":"masculino","hemoglobina":15,"mch":30,"mchc":34,"mcv":90}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	text := string(body)
	submitting := strings.Index(text, `"status":"submitting"`)
	success := strings.Index(text, `"status":"success"`)
	require.GreaterOrEqual(t, submitting, 0)
	require.Greater(t, success, submitting)
	assert.Contains(t, text, `"branch":"sin_anemia"`)
}

func TestHealth(t *testing.T) {
	backend := &stubBackend{}
	srv, _ := newTestServer(t, backend)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	backend.mu.Lock()
	backend.pingErr = errors.New("down")
	backend.mu.Unlock()
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := CORSMiddleware([]string{"http://localhost:5173"}, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/analizar-anemia", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/analizar-anemia", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
