package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"anemia-detect-go/internal/model"
)

const (
	// AnalyzePath 分析接口路径
	AnalyzePath = "/api/analizar-anemia"
	// PingPath 后端根路由
	PingPath = "/api/"

	maxResponseBytes = 1 << 20
)

// ErrMalformedResponse 响应体无法解析或缺少必要字段
var ErrMalformedResponse = errors.New("malformed analysis response")

// StatusError 后端返回非2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// BackendClient 分析后端HTTP客户端
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewBackendClient 创建客户端，timeout为0时不设置超时
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL 后端地址
func (c *BackendClient) BaseURL() string {
	return c.baseURL
}

// analysisResponse 用指针区分字段缺失
type analysisResponse struct {
	HasAnemia       *bool                  `json:"tiene_anemia"`
	Message         string                 `json:"mensaje"`
	SubmittedValues *model.SubmittedValues `json:"valores_ingresados"`
	Severity        string                 `json:"nivel_severidad"`
	Probability     *float64               `json:"prob_anemia"`
	Recommendations []string               `json:"recomendaciones"`
}

// Analyze 提交一次分析，不重试
func (c *BackendClient) Analyze(ctx context.Context, reqBody model.AnalysisRequest) (*model.AnalysisResult, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analysis backend: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("analysis backend responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed analysisResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.HasAnemia == nil {
		return nil, fmt.Errorf("%w: missing tiene_anemia", ErrMalformedResponse)
	}

	result := &model.AnalysisResult{
		HasAnemia:       *parsed.HasAnemia,
		Message:         parsed.Message,
		Severity:        parsed.Severity,
		Probability:     parsed.Probability,
		Recommendations: parsed.Recommendations,
	}
	if parsed.SubmittedValues != nil {
		result.SubmittedValues = *parsed.SubmittedValues
	} else {
		// 后端没有回显时，用请求值补齐
		result.SubmittedValues = model.SubmittedValues{
			Gender:     string(reqBody.Gender),
			Hemoglobin: reqBody.Hemoglobin,
			MCH:        reqBody.MCH,
			MCHC:       reqBody.MCHC,
			MCV:        reqBody.MCV,
		}
	}
	return result, nil
}

// Ping 检查后端是否可达
func (c *BackendClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PingPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach analysis backend: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
