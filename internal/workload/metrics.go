package workload

import "time"

// Metrics 收集安装/回滚/回收的统计，nil 表示未启用。
type Metrics interface {
	ObserveInstall(kind PackKind, result string, elapsed time.Duration)
	ObserveRollback(result string)
	ObserveCollect(result CollectResult, elapsed time.Duration)
}

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

func resultLabel(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
