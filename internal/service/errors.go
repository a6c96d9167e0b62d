package service

import (
	"errors"
	"fmt"
	"strings"

	"anemia-detect-go/internal/model"
)

var (
	// ErrIncompleteForm 有字段为空
	ErrIncompleteForm = errors.New("incomplete form")
	// ErrInvalidGender 性别不在允许范围内
	ErrInvalidGender = errors.New("invalid gender")
	// ErrInvalidNumber 数值字段无法解析
	ErrInvalidNumber = errors.New("invalid number")
	// ErrAnalysisFailed 网络错误、非2xx、响应无法解析统一归为此类
	ErrAnalysisFailed = errors.New("analysis request failed")
)

// ValidationError 本地校验失败，不会发起请求
type ValidationError struct {
	Fields []model.Field
	Err    error
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Notice 错误对应的用户提示
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompleteForm):
		return model.NoticeIncomplete
	case errors.Is(err, ErrInvalidGender), errors.Is(err, ErrInvalidNumber):
		return model.NoticeInvalid
	default:
		return model.NoticeFailed
	}
}
