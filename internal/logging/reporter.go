package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Reporter 将安装/回收的进度行写到 CLI 输出，并以 debug 级别同步到结构化日志。
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	logger *logrus.Logger
}

// NewReporter 创建 Reporter；logger 为空时只写 out。
func NewReporter(out io.Writer, logger *logrus.Logger) *Reporter {
	return &Reporter{out: out, logger: logger}
}

// WriteLine 输出一行格式化文本。
func (r *Reporter) WriteLine(format string, args ...any) {
	line := fmt.Sprintf(format, args...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil {
		fmt.Fprintln(r.out, line)
	}
	if r.logger != nil {
		r.logger.WithField("action", "report").Debug(line)
	}
}
