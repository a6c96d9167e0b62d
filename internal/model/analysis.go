package model

import "strings"

// Gender 性别
type Gender string

const (
	GenderMale   Gender = "masculino"
	GenderFemale Gender = "femenino"
)

// AllGenders 所有合法性别取值
var AllGenders = []Gender{GenderMale, GenderFemale}

// Valid 是否为合法性别
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Label 展示用名称
func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return "Masculino"
	case GenderFemale:
		return "Femenino"
	}
	return string(g)
}

// Field 表单字段
type Field string

const (
	FieldGender     Field = "genero"
	FieldHemoglobin Field = "hemoglobina"
	FieldMCH        Field = "mch"
	FieldMCHC       Field = "mchc"
	FieldMCV        Field = "mcv"
)

// AllFields 表单字段，按页面顺序
var AllFields = []Field{FieldGender, FieldHemoglobin, FieldMCH, FieldMCHC, FieldMCV}

// MeasurementFields 数值字段
var MeasurementFields = []Field{FieldHemoglobin, FieldMCH, FieldMCHC, FieldMCV}

// InputForm 用户输入的表单，全部保持字符串原样
type InputForm struct {
	Gender     string `json:"genero"`
	Hemoglobin string `json:"hemoglobina"`
	MCH        string `json:"mch"`
	MCHC       string `json:"mchc"`
	MCV        string `json:"mcv"`
}

// Get 读取字段
func (f InputForm) Get(field Field) string {
	switch field {
	case FieldGender:
		return f.Gender
	case FieldHemoglobin:
		return f.Hemoglobin
	case FieldMCH:
		return f.MCH
	case FieldMCHC:
		return f.MCHC
	case FieldMCV:
		return f.MCV
	}
	return ""
}

// Set 写入字段，未知字段返回false
func (f *InputForm) Set(field Field, value string) bool {
	switch field {
	case FieldGender:
		f.Gender = value
	case FieldHemoglobin:
		f.Hemoglobin = value
	case FieldMCH:
		f.MCH = value
	case FieldMCHC:
		f.MCHC = value
	case FieldMCV:
		f.MCV = value
	default:
		return false
	}
	return true
}

// Missing 返回为空的字段
func (f InputForm) Missing() []Field {
	var missing []Field
	for _, field := range AllFields {
		if strings.TrimSpace(f.Get(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Complete 五个字段是否都已填写
func (f InputForm) Complete() bool {
	return len(f.Missing()) == 0
}

// AnalysisRequest 发往分析后端的请求体
type AnalysisRequest struct {
	Gender     Gender  `json:"genero"`
	Hemoglobin float64 `json:"hemoglobina"`
	MCH        float64 `json:"mch"`
	MCHC       float64 `json:"mchc"`
	MCV        float64 `json:"mcv"`
}

// SubmittedValues 后端回显的输入值
type SubmittedValues struct {
	Gender     string  `json:"genero"`
	Hemoglobin float64 `json:"hemoglobina"`
	MCH        float64 `json:"mch"`
	MCHC       float64 `json:"mchc"`
	MCV        float64 `json:"mcv"`
}

// AnalysisResult 分析后端返回的结果
type AnalysisResult struct {
	HasAnemia       bool            `json:"tiene_anemia"`
	Message         string          `json:"mensaje"`
	SubmittedValues SubmittedValues `json:"valores_ingresados"`

	// 以下字段后端可能不返回
	Severity        string   `json:"nivel_severidad,omitempty"`
	Probability     *float64 `json:"prob_anemia,omitempty"`
	Recommendations []string `json:"recomendaciones,omitempty"`
}

// Branch 结果分支
type Branch string

const (
	BranchAnemia   Branch = "anemia"
	BranchNoAnemia Branch = "sin_anemia"
)

// Branch 只有两个分支，由tiene_anemia决定
func (r *AnalysisResult) Branch() Branch {
	if r.HasAnemia {
		return BranchAnemia
	}
	return BranchNoAnemia
}
