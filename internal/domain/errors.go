package domain

import (
	"errors"
	"fmt"
)

// 条目级错误码（report.items[].error_code）。
const (
	ErrCodeFetchFailed      = "fetch_failed"
	ErrCodeConversionFailed = "conversion_failed"
	ErrCodeInvalidParameter = "invalid_parameter"
	ErrCodeIOFailed         = "io_failed"
)

// Error 是流水线各阶段的结构化错误（带 error_code）。
// 组件在自己的边界上包装底层错误；编排层只看 Code，不解析错误文本。
type Error struct {
	Code string
	Op   string // 例如 "fetch" / "rasterize" / "write"
	Path string // URL 或文件路径（可为空）
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s %s %q：%v", e.Code, e.Op, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s：%v", e.Code, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Code, e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode 从 error 链中提取 error_code；若不是 *Error 则返回空串。
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func FetchError(op, path string, err error) error {
	return &Error{Code: ErrCodeFetchFailed, Op: op, Path: path, Err: err}
}

func ConversionError(op, path string, err error) error {
	return &Error{Code: ErrCodeConversionFailed, Op: op, Path: path, Err: err}
}

func InvalidParameter(op string, err error) error {
	return &Error{Code: ErrCodeInvalidParameter, Op: op, Err: err}
}

func FilesystemError(op, path string, err error) error {
	return &Error{Code: ErrCodeIOFailed, Op: op, Path: path, Err: err}
}
