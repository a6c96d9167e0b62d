package utils

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotANumber 无法解析为有限浮点数
var ErrNotANumber = errors.New("not a finite number")

// ParseMeasurement 解析用户输入的数值
// 去掉首尾空白，接受逗号作为小数点（"10,5" 等同 "10.5"）
func ParseMeasurement(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrNotANumber
	}
	// 只有一个逗号且没有点时才当作小数点
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotANumber
	}
	return v, nil
}

// FormatMeasurement 最短表示，26 -> "26"，10.5 -> "10.5"
func FormatMeasurement(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatWithUnit 带单位输出
func FormatWithUnit(v float64, unit string) string {
	if unit == "" {
		return FormatMeasurement(v)
	}
	return FormatMeasurement(v) + " " + unit
}

// FormatPercent 概率转百分比，保留一位小数
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 1, 64) + "%"
}
