package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anemia-detect-go/config"
	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *service.Session {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return service.NewSession(fetcher.NewBackendClient(srv.URL, 0, zap.NewNop()), zap.NewNop())
}

func TestAnalyzeOncePrintsResult(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetcher.AnalyzePath, r.URL.Path)
		var req model.AnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.GenderFemale, req.Gender)
		assert.Equal(t, 10.5, req.Hemoglobin)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tiene_anemia":true,"mensaje":"Posible anemia","valores_ingresados":{"genero":"femenino","hemoglobina":10.5,"mch":26,"mchc":30,"mcv":78}}`))
	})

	form := model.InputForm{Gender: "femenino", Hemoglobin: "10.5", MCH: "26", MCHC: "30", MCV: "78"}
	result, err := analyzeOnce(context.Background(), s, form)
	require.NoError(t, err)

	var out bytes.Buffer
	printResult(&out, result)
	text := out.String()
	assert.Contains(t, text, "Anemia Detectada")
	assert.Contains(t, text, "Posible anemia")
	assert.Contains(t, text, "10.5 g/dL")
	assert.Contains(t, text, model.AnemiaRecommendations[0])
	assert.Contains(t, text, model.NutritionGuide[0].Title)
}

func TestAnalyzeOnceIncompleteForm(t *testing.T) {
	called := false
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := analyzeOnce(context.Background(), s, model.InputForm{Gender: "masculino", Hemoglobin: "14"})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrIncompleteForm)
	assert.Contains(t, err.Error(), model.NoticeIncomplete)
	assert.False(t, called)
}

func TestAnalyzeOnceBackendFailure(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	form := model.InputForm{Gender: "masculino", Hemoglobin: "14", MCH: "29", MCHC: "33", MCV: "88"}
	_, err := analyzeOnce(context.Background(), s, form)
	require.Error(t, err)
	assert.Equal(t, model.NoticeFailed, err.Error())
}

func TestRunAnalyzeUsesConfiguredLogLevel(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{BackendURL: config.DefaultBackendURL, LogLevel: "verbose"}
	err := runAnalyze(analyzeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "verbose"`)
}
