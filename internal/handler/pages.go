package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/utils"
)

var pageNames = []string{"landing", "analysis", "notfound"}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// render 先写入缓冲，模板出错时不会输出半个页面
func (h *AnalysisHandler) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("failed to render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type genderOption struct {
	Value    string
	Label    string
	Selected bool
}

type fieldView struct {
	model.FieldSpec
	Value   string
	Invalid bool
}

type valueRow struct {
	Label string
	Value string
}

type resultView struct {
	model.BranchView
	Anemia                 bool
	Message                string
	Values                 []valueRow
	Severity               string
	Probability            string
	BackendRecommendations []string
	Nutrition              []model.NutritionCard
}

type analysisPage struct {
	Title      string
	Genders    []genderOption
	GenderBad  bool
	Fields     []fieldView
	Busy       bool
	Notice     string
	Disclaimer string
	Result     *resultView
}

func newAnalysisPage(snap model.Snapshot, notice string, invalid []model.Field) analysisPage {
	bad := make(map[model.Field]bool, len(invalid))
	for _, f := range invalid {
		bad[f] = true
	}

	page := analysisPage{
		Title:      "Sistema de Detección de Anemia",
		GenderBad:  bad[model.FieldGender],
		Busy:       snap.Busy,
		Notice:     notice,
		Disclaimer: model.Disclaimer,
	}
	if page.Notice == "" {
		page.Notice = snap.Notice
	}

	for _, g := range model.AllGenders {
		page.Genders = append(page.Genders, genderOption{
			Value:    string(g),
			Label:    g.Label(),
			Selected: snap.Form.Gender == string(g),
		})
	}
	for _, spec := range model.FieldSpecs {
		page.Fields = append(page.Fields, fieldView{
			FieldSpec: spec,
			Value:     snap.Form.Get(spec.Field),
			Invalid:   bad[spec.Field],
		})
	}
	if snap.Result != nil {
		page.Result = newResultView(snap.Result)
	}
	return page
}

func newResultView(r *model.AnalysisResult) *resultView {
	view := &resultView{
		BranchView:             model.ViewFor(r.Branch()),
		Anemia:                 r.HasAnemia,
		Message:                r.Message,
		Severity:               r.Severity,
		BackendRecommendations: r.Recommendations,
		Nutrition:              model.NutritionGuide,
	}
	if r.Probability != nil {
		view.Probability = utils.FormatPercent(*r.Probability)
	}

	v := r.SubmittedValues
	view.Values = append(view.Values, valueRow{Label: "Género", Value: v.Gender})
	for _, spec := range model.FieldSpecs {
		var n float64
		switch spec.Field {
		case model.FieldHemoglobin:
			n = v.Hemoglobin
		case model.FieldMCH:
			n = v.MCH
		case model.FieldMCHC:
			n = v.MCHC
		case model.FieldMCV:
			n = v.MCV
		}
		view.Values = append(view.Values, valueRow{Label: spec.Short, Value: utils.FormatWithUnit(n, spec.Unit)})
	}
	return view
}

// Landing 首页
// GET /
func (h *AnalysisHandler) Landing(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "landing", map[string]string{"Title": "Detección temprana de anemia"})
}

// AnalysisPage 表单与结果页
// GET /analisis
func (h *AnalysisHandler) AnalysisPage(w http.ResponseWriter, r *http.Request) {
	_, s := h.loadSession(w, r)
	h.render(w, http.StatusOK, "analysis", newAnalysisPage(s.Snapshot(), "", nil))
}

// SubmitForm 提交表单
// POST /analisis
func (h *AnalysisHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	id, s := h.loadSession(w, r)
	for _, field := range model.AllFields {
		s.Edit(field, r.PostFormValue(string(field)))
	}

	_, err := s.Submit(r.Context())
	// 空闲状态下的编辑不会触发观察者，这里补存一次
	h.saveSession(r.Context(), id, s)
	snap := s.Snapshot()

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		h.render(w, http.StatusUnprocessableEntity, "analysis", newAnalysisPage(snap, service.Notice(err), verr.Fields))
		return
	}
	if err != nil {
		h.logger.Warn("analysis failed", zap.String("session", id), zap.Error(err))
	}
	h.render(w, http.StatusOK, "analysis", newAnalysisPage(snap, "", nil))
}

// ResetForm 重置表单和结果
// POST /analisis/reset
func (h *AnalysisHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	_, s := h.loadSession(w, r)
	// Reset 通知观察者，空快照会从存储中删除
	s.Reset()
	http.Redirect(w, r, "/analisis", http.StatusSeeOther)
}

// NotFound 未知路由
func (h *AnalysisHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusNotFound, "notfound", map[string]string{"Title": "Página no encontrada"})
}
