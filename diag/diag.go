// Package diag 定义编译阶段产生的诊断信息。
//
// 诊断是编译器“成功运行但发现问题”的结果，与桥接层自身的错误（error）严格区分：
// 前者作为返回值的一部分原样交给宿主，后者通过 error 返回。
package diag

import (
	"fmt"
	"strings"
)

// Severity 表示诊断级别。
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// MarshalText 让 JSON 输出使用 "error"/"warning"。
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("未知的诊断级别：%s", b)
	}
	return nil
}

// Location 指向虚拟文件中的位置，行列号从 1 开始。
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	if l.Line <= 0 {
		return l.Path
	}
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

// Diagnostic 是一条诊断。
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Location == nil {
		return d.Severity.String() + ": " + d.Message
	}
	return d.Location.String() + ": " + d.Severity.String() + ": " + d.Message
}

// List 是按产生顺序排列的诊断序列。
type List []Diagnostic

// HasErrors 判断是否包含 error 级别的诊断。
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors 返回其中 error 级别的条目。
func (l List) Errors() List {
	return l.filter(SeverityError)
}

// Warnings 返回其中 warning 级别的条目。
func (l List) Warnings() List {
	return l.filter(SeverityWarning)
}

func (l List) filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

func (l List) String() string {
	lines := make([]string, 0, len(l))
	for _, d := range l {
		lines = append(lines, d.String())
	}
	return strings.Join(lines, "\n")
}

// Errorf 构造一条 error 级别诊断，loc 可以为空。
func Errorf(loc *Location, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Location: loc}
}

// Warnf 构造一条 warning 级别诊断。
func Warnf(loc *Location, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Location: loc}
}

// At 是构造 *Location 的便捷函数。
func At(path string, line, column int) *Location {
	return &Location{Path: path, Line: line, Column: column}
}
