package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/sse"
)

// flexString 接受JSON字符串或数字
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// AnalyzeRequest JSON接口的请求体，数值可以是字符串或数字
type AnalyzeRequest struct {
	Gender     flexString `json:"genero"`
	Hemoglobin flexString `json:"hemoglobina"`
	MCH        flexString `json:"mch"`
	MCHC       flexString `json:"mchc"`
	MCV        flexString `json:"mcv"`
}

func (a AnalyzeRequest) form() model.InputForm {
	return model.InputForm{
		Gender:     string(a.Gender),
		Hemoglobin: string(a.Hemoglobin),
		MCH:        string(a.MCH),
		MCHC:       string(a.MCHC),
		MCV:        string(a.MCV),
	}
}

type errorResponse struct {
	Error  string        `json:"error"`
	Fields []model.Field `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newStatelessSession JSON/SSE接口每次请求独立会话
func (h *AnalysisHandler) newStatelessSession(req AnalyzeRequest) *service.Session {
	s := service.NewSession(h.backend, h.logger)
	form := req.form()
	for _, field := range model.AllFields {
		s.Edit(field, form.Get(field))
	}
	return s
}

// AnalyzeJSON JSON代理接口
// POST /api/analizar-anemia
// Body: {"genero": "femenino", "hemoglobina": 10.5, "mch": 26, "mchc": 30, "mcv": 78}
func (h *AnalysisHandler) AnalyzeJSON(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.newStatelessSession(req).Submit(r.Context())
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.Notice(err), Fields: verr.Fields})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: model.NoticeFailed})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// AnalyzeSSE 以SSE推送状态变化
// POST /api/analizar-anemia/sse
func (h *AnalysisHandler) AnalyzeSSE(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	defer writer.StopHeartbeat()

	s := h.newStatelessSession(req)
	s.Observe(func(snap model.Snapshot) {
		if err := writer.SendSnapshot(snap); err != nil {
			h.logger.Debug("failed to write SSE event", zap.Error(err))
		}
	})

	_, err = s.Submit(r.Context())
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writer.SendInvalid(service.Notice(err), verr.Fields)
	}
}

// Health 健康检查，同时探测后端
// GET /health
func (h *AnalysisHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		h.logger.Warn("analysis backend unreachable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "backend": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": "ok"})
}
