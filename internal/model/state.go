package model

// Phase 分析会话所处阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// Terminal 是否为提交结束后的阶段
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailed
}

// Snapshot 会话状态快照（只读副本）
type Snapshot struct {
	Form   InputForm       `json:"form"`
	Result *AnalysisResult `json:"result,omitempty"`
	Phase  Phase           `json:"phase"`
	Busy   bool            `json:"busy"`
	Notice string          `json:"notice,omitempty"`
}

// Empty 是否为初始空状态（无输入、无结果、无请求）
func (s Snapshot) Empty() bool {
	return s == (Snapshot{Phase: PhaseIdle})
}

// Clone 深拷贝，避免调用方修改共享的结果
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Result != nil {
		r := *s.Result
		if s.Result.Probability != nil {
			p := *s.Result.Probability
			r.Probability = &p
		}
		if s.Result.Recommendations != nil {
			r.Recommendations = append([]string(nil), s.Result.Recommendations...)
		}
		out.Result = &r
	}
	return out
}
