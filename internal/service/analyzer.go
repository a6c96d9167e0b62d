package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/utils"
)

// Observer 状态变化回调，在锁外调用
type Observer func(model.Snapshot)

// Session 一次页面会话内的表单与结果
//
// 状态机: idle -> submitting -> success | failed，
// success/failed 在下一次编辑或重置时回到 idle。
// busy 只是界面上的提示，Submit 本身不拒绝并发调用。
type Session struct {
	analyzer fetcher.Analyzer
	logger   *zap.Logger

	mu        sync.Mutex
	form      model.InputForm
	result    *model.AnalysisResult
	phase     model.Phase
	inflight  int
	notice    string
	gen       uint64 // Reset 递增，丢弃重置前发出的请求结果
	observers []Observer
}

// NewSession 创建空会话
func NewSession(analyzer fetcher.Analyzer, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		analyzer: analyzer,
		logger:   logger,
		phase:    model.PhaseIdle,
	}
}

// RestoreSession 从快照恢复会话（用于Web会话存储）
func RestoreSession(analyzer fetcher.Analyzer, logger *zap.Logger, snap model.Snapshot) *Session {
	s := NewSession(analyzer, logger)
	snap = snap.Clone()
	s.form = snap.Form
	s.result = snap.Result
	s.notice = snap.Notice
	if snap.Phase != "" {
		s.phase = snap.Phase
	}
	// 进行中的请求属于别的进程，这里只保留结果
	if s.phase == model.PhaseSubmitting {
		s.phase = model.PhaseIdle
	}
	return s
}

// Observe 注册状态观察者
func (s *Session) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot 当前状态副本
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Form:   s.form,
		Result: s.result,
		Phase:  s.phase,
		Busy:   s.inflight > 0,
		Notice: s.notice,
	}.Clone()
}

// CanSubmit 提交按钮是否可用
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

// Busy 是否有请求在进行中
func (s *Session) Busy() bool {
	return !s.CanSubmit()
}

// Edit 修改一个字段，结束态回到idle，已有结果保留显示
func (s *Session) Edit(field model.Field, value string) error {
	s.mu.Lock()
	if !s.form.Set(field, value) {
		s.mu.Unlock()
		return fmt.Errorf("unknown field %q", field)
	}
	changed := false
	if s.phase.Terminal() {
		s.phase = model.PhaseIdle
		s.notice = ""
		changed = true
	}
	snap, obs := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	if changed {
		s.publish(obs, snap)
	}
	return nil
}

// Reset 清空结果和全部字段，可重复调用
func (s *Session) Reset() {
	s.mu.Lock()
	s.form = model.InputForm{}
	s.result = nil
	s.notice = ""
	s.phase = model.PhaseIdle
	s.gen++
	snap, obs := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.publish(obs, snap)
}

// Submit 校验表单并调用后端
//
// 校验失败直接返回 *ValidationError，不发请求也不改变状态。
// 请求失败时结果被清空、提示通用错误，返回的错误包装 ErrAnalysisFailed。
// 请求一旦发出不可取消，ctx 只传递值。
func (s *Session) Submit(ctx context.Context) (*model.AnalysisResult, error) {
	s.mu.Lock()
	req, err := BuildRequest(s.form)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.phase = model.PhaseSubmitting
	s.result = nil
	s.notice = ""
	s.inflight++
	gen := s.gen
	snap, obs := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.publish(obs, snap)
	s.logger.Info("submitting analysis", zap.String("genero", string(req.Gender)))

	result, callErr := s.analyzer.Analyze(context.WithoutCancel(ctx), req)

	s.mu.Lock()
	s.inflight--
	stale := gen != s.gen
	if !stale {
		if callErr != nil {
			s.result = nil
			s.phase = model.PhaseFailed
			s.notice = model.NoticeFailed
		} else {
			s.result = result
			s.phase = model.PhaseSuccess
		}
	}
	snap, obs = s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	s.publish(obs, snap)

	if callErr != nil {
		s.logger.Warn("analysis request failed", zap.Error(callErr))
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, callErr)
	}
	if stale {
		s.logger.Debug("discarding analysis result after reset")
		return result, nil
	}
	s.logger.Info("analysis completed", zap.String("branch", string(result.Branch())))
	return snap.Result, nil
}

func (s *Session) observersLocked() []Observer {
	return append([]Observer(nil), s.observers...)
}

func (s *Session) publish(obs []Observer, snap model.Snapshot) {
	for _, fn := range obs {
		fn(snap)
	}
}

// BuildRequest 把表单转成请求体
func BuildRequest(form model.InputForm) (model.AnalysisRequest, error) {
	if missing := form.Missing(); len(missing) > 0 {
		return model.AnalysisRequest{}, &ValidationError{Fields: missing, Err: ErrIncompleteForm}
	}

	gender := model.Gender(strings.ToLower(strings.TrimSpace(form.Gender)))
	if !gender.Valid() {
		return model.AnalysisRequest{}, &ValidationError{Fields: []model.Field{model.FieldGender}, Err: ErrInvalidGender}
	}

	values := make(map[model.Field]float64, len(model.MeasurementFields))
	var invalid []model.Field
	for _, field := range model.MeasurementFields {
		v, err := utils.ParseMeasurement(form.Get(field))
		if err != nil {
			invalid = append(invalid, field)
			continue
		}
		values[field] = v
	}
	if len(invalid) > 0 {
		return model.AnalysisRequest{}, &ValidationError{Fields: invalid, Err: ErrInvalidNumber}
	}

	return model.AnalysisRequest{
		Gender:     gender,
		Hemoglobin: values[model.FieldHemoglobin],
		MCH:        values[model.FieldMCH],
		MCHC:       values[model.FieldMCHC],
		MCV:        values[model.FieldMCV],
	}, nil
}
