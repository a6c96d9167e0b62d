package model

// 页面上的静态文案，不做任何判断，只按结果分支选择

// NoAnemiaRecommendations 无贫血时的建议
var NoAnemiaRecommendations = []string{
	"Mantén una dieta balanceada rica en hierro (carnes rojas, espinacas, lentejas)",
	"Consume alimentos ricos en vitamina C para mejorar la absorción de hierro",
	"Realiza chequeos médicos anuales de rutina",
	"Mantén un estilo de vida activo con ejercicio regular",
	"Hidrátate adecuadamente (8 vasos de agua al día)",
}

// AnemiaRecommendations 检测到贫血时的建议
var AnemiaRecommendations = []string{
	"IMPORTANTE: Consulta con un médico para un diagnóstico profesional",
	"Aumenta el consumo de alimentos ricos en hierro: carnes rojas magras, hígado, pollo",
	"Consume vegetales de hojas verdes: espinacas, acelgas, brócoli",
	"Incorpora legumbres: lentejas, garbanzos, frijoles negros",
	"Incluye alimentos con vitamina C: naranjas, fresas, kiwi (mejora absorción de hierro)",
	"Agrega huevos y frutos secos a tu dieta diaria",
	"Evita el café y té durante las comidas (interfieren con absorción de hierro)",
	"Considera suplementos de hierro solo bajo supervisión médica",
	"Descansa adecuadamente (7-8 horas diarias)",
	"Realiza seguimiento con análisis de sangre regulares",
}

// NutritionCard 营养指南卡片
type NutritionCard struct {
	Title    string
	Examples string
}

// NutritionGuide 推荐食物
var NutritionGuide = []NutritionCard{
	{Title: "Vegetales Verdes", Examples: "Espinacas, acelgas, brócoli"},
	{Title: "Proteínas", Examples: "Carnes rojas, pollo, pescado"},
	{Title: "Legumbres", Examples: "Lentejas, garbanzos, frijoles"},
}

// BranchView 某个结果分支的展示文案
type BranchView struct {
	Title           string
	Verdict         string
	PlanSubtitle    string
	Recommendations []string
}

var branchViews = map[Branch]BranchView{
	BranchAnemia: {
		Title:           "Anemia Detectada",
		Verdict:         "Con Anemia",
		PlanSubtitle:    "Plan de acción para mejorar tus niveles de hemoglobina",
		Recommendations: AnemiaRecommendations,
	},
	BranchNoAnemia: {
		Title:           "Sin Anemia",
		Verdict:         "Sin Anemia",
		PlanSubtitle:    "Consejos para mantener tus niveles óptimos",
		Recommendations: NoAnemiaRecommendations,
	},
}

// ViewFor 返回分支对应的文案
func ViewFor(b Branch) BranchView {
	return branchViews[b]
}

// FieldSpec 数值字段的展示信息，参考范围只用于提示
type FieldSpec struct {
	Field       Field
	Label       string
	Short       string
	Unit        string
	Placeholder string
	NormalRange string
}

// FieldSpecs 四个数值字段
var FieldSpecs = []FieldSpec{
	{Field: FieldHemoglobin, Label: "Hemoglobina (g/dL)", Short: "Hemoglobina", Unit: "g/dL", Placeholder: "ej: 13.5", NormalRange: "12–17 g/dL"},
	{Field: FieldMCH, Label: "MCH — Hemoglobina Corpuscular Media (pg)", Short: "MCH — Hemoglobina Corpuscular Media", Unit: "pg", Placeholder: "ej: 29.5", NormalRange: "27–33 pg"},
	{Field: FieldMCHC, Label: "MCHC — Concentración de Hemoglobina Corpuscular Media (g/dL)", Short: "MCHC — Concentración de Hemoglobina Corpuscular Media", Unit: "g/dL", Placeholder: "ej: 33.5", NormalRange: "32–36 g/dL"},
	{Field: FieldMCV, Label: "MCV — Volumen Corpuscular Medio (fL)", Short: "MCV — Volumen Corpuscular Medio", Unit: "fL", Placeholder: "ej: 88.0", NormalRange: "80–100 fL"},
}

const (
	// NoticeIncomplete 表单不完整
	NoticeIncomplete = "Completa todos los campos."
	// NoticeInvalid 数值无法解析
	NoticeInvalid = "Revisa los valores ingresados."
	// NoticeFailed 唯一的对外错误提示
	NoticeFailed = "Error al procesar el análisis"
	// Disclaimer 免责声明
	Disclaimer = "Este análisis es orientativo y no reemplaza una consulta médica profesional."
)
