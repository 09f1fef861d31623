package domain

import "fmt"

// ValidationError 表示请求缺少必填字段，对应 HTTP 400。
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s required", e.Field)
}

// UpstreamError 表示规则存储不可用或查询失败，对应 HTTP 500。
// 出现 UpstreamError 时不会返回任何部分报价。
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Message 是返回给调用方的错误信息，不包含底层数据库细节。
func (e *UpstreamError) Message() string {
	return e.Op + " failed"
}
