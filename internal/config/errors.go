package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// packField 拼接 Pack 级字段路径，输出 Pack[xxx].Field 形式。
func packField(id, field string) string {
	if id == "" {
		return fmt.Sprintf("Pack[].%s", field)
	}
	return fmt.Sprintf("Pack[%s].%s", id, field)
}

// workloadField 拼接 Workload 级字段路径。
func workloadField(id, field string) string {
	if id == "" {
		return fmt.Sprintf("Workload[].%s", field)
	}
	return fmt.Sprintf("Workload[%s].%s", id, field)
}
