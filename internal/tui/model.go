// Package tui 终端版分析表单
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/utils"
)

// submitDoneMsg 后台提交结束，gen 为发起时的重置代数
type submitDoneMsg struct {
	gen int
	err error
}

// Model 终端表单，焦点0为性别，1..4为数值字段
type Model struct {
	session   *service.Session
	genderIdx int // -1 未选择
	inputs    []textinput.Model
	focus     int
	pending   bool
	gen       int // ctrl+r 递增，之前发起的提交结果不再显示
	notice    string
	width     int
}

// New 创建终端表单
func New(session *service.Session) Model {
	inputs := make([]textinput.Model, len(model.FieldSpecs))
	for i, spec := range model.FieldSpecs {
		ti := textinput.New()
		ti.Placeholder = spec.Placeholder
		ti.CharLimit = 16
		ti.Width = 12
		inputs[i] = ti
	}
	return Model{
		session:   session,
		genderIdx: -1,
		inputs:    inputs,
	}
}

// Init 实现tea.Model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update 实现tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case submitDoneMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.pending = false
		m.notice = service.Notice(msg.err)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m, m.setFocus((m.focus + 1) % (len(m.inputs) + 1))
		case "shift+tab", "up":
			return m, m.setFocus((m.focus + len(m.inputs)) % (len(m.inputs) + 1))
		case "enter":
			if m.pending || !m.session.CanSubmit() {
				return m, nil
			}
			m.pending = true
			m.notice = ""
			return m, submitCmd(m.session, m.gen)
		case "ctrl+r":
			m.session.Reset()
			m.gen++
			m.pending = false
			m.genderIdx = -1
			for i := range m.inputs {
				m.inputs[i].SetValue("")
			}
			m.notice = ""
			return m, nil
		}

		if m.focus == 0 {
			m.updateGender(msg)
			return m, nil
		}
	}

	if m.focus == 0 {
		return m, nil
	}
	idx := m.focus - 1
	var cmd tea.Cmd
	before := m.inputs[idx].Value()
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	if value := m.inputs[idx].Value(); value != before {
		m.session.Edit(model.FieldSpecs[idx].Field, value)
		m.notice = ""
	}
	return m, cmd
}

func (m *Model) updateGender(msg tea.KeyMsg) {
	n := len(model.AllGenders)
	switch msg.String() {
	case "right", "l", " ":
		m.genderIdx = (m.genderIdx + 1) % n
	case "left", "h":
		if m.genderIdx <= 0 {
			m.genderIdx = n - 1
		} else {
			m.genderIdx--
		}
	case "m":
		m.genderIdx = 0
	case "f":
		m.genderIdx = 1
	default:
		return
	}
	m.session.Edit(model.FieldGender, string(model.AllGenders[m.genderIdx]))
	m.notice = ""
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i-1 {
			cmd = m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return cmd
}

// submitCmd 在后台goroutine中提交，界面保持响应
func submitCmd(s *service.Session, gen int) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Submit(context.Background())
		return submitDoneMsg{gen: gen, err: err}
	}
}

// View 实现tea.Model
func (m Model) View() string {
	snap := m.session.Snapshot()
	var b strings.Builder

	b.WriteString(titleStyle.Render("Sistema de Detección de Anemia"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("Ingresa tus valores para obtener un análisis detallado"))
	b.WriteString("\n\n")

	b.WriteString(m.label(0, "Género"))
	b.WriteString("  ")
	for i, g := range model.AllGenders {
		mark := "( )"
		if i == m.genderIdx {
			mark = "(•)"
		}
		fmt.Fprintf(&b, "%s %s  ", mark, g.Label())
	}
	b.WriteString("\n")

	for i, spec := range model.FieldSpecs {
		b.WriteString(m.label(i+1, spec.Label))
		b.WriteString("\n  ")
		b.WriteString(m.inputs[i].View())
		b.WriteString("  ")
		b.WriteString(hintStyle.Render("Rango normal: " + spec.NormalRange))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.pending || snap.Busy {
		b.WriteString(busyStyle.Render("Analizando..."))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	if snap.Result != nil {
		b.WriteString("\n")
		b.WriteString(renderResult(snap.Result))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render(model.Disclaimer))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab/↑↓: campo • ←/→: género • enter: analizar • ctrl+r: nuevo análisis • esc: salir"))
	return b.String()
}

func (m Model) label(i int, text string) string {
	if m.focus == i {
		return focusedLabelStyle.Render("› " + text)
	}
	return labelStyle.Render("  " + text)
}

func renderResult(r *model.AnalysisResult) string {
	view := model.ViewFor(r.Branch())
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", view.Title)
	if r.Message != "" {
		fmt.Fprintf(&b, "%s\n", r.Message)
	}
	b.WriteString("\nValores Ingresados:\n")
	v := r.SubmittedValues
	fmt.Fprintf(&b, "  Género: %s\n", v.Gender)
	fmt.Fprintf(&b, "  Hemoglobina: %s\n", utils.FormatWithUnit(v.Hemoglobin, "g/dL"))
	fmt.Fprintf(&b, "  MCH: %s\n", utils.FormatWithUnit(v.MCH, "pg"))
	fmt.Fprintf(&b, "  MCHC: %s\n", utils.FormatWithUnit(v.MCHC, "g/dL"))
	fmt.Fprintf(&b, "  MCV: %s\n", utils.FormatWithUnit(v.MCV, "fL"))
	fmt.Fprintf(&b, "\nResultado: %s\n", view.Verdict)
	if r.Severity != "" {
		fmt.Fprintf(&b, "Severidad: %s\n", r.Severity)
	}
	if r.Probability != nil {
		fmt.Fprintf(&b, "Probabilidad: %s\n", utils.FormatPercent(*r.Probability))
	}

	fmt.Fprintf(&b, "\nRecomendaciones Personalizadas: %s\n", view.PlanSubtitle)
	for i, rec := range view.Recommendations {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, rec)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	b.WriteString("\nGuía Nutricional\n")
	for _, card := range model.NutritionGuide {
		fmt.Fprintf(&b, "  • %s: %s\n", card.Title, card.Examples)
	}

	style := healthyBoxStyle
	if r.HasAnemia {
		style = anemiaBoxStyle
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}

// Run 启动终端界面
func Run(session *service.Session) error {
	p := tea.NewProgram(New(session), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
