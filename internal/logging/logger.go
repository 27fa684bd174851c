package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/any-hub/workpack/internal/config"
)

// InitLogger 按全局配置构建 JSON 日志：写文件时走 lumberjack 轮转，
// 文件不可用则退回 stdout 并记录一条 logger_fallback。
// 每条日志都会带上 install_root 与 feature_band，方便多个安装根共用同一日志采集。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(rootHook{root: cfg.InstallRoot, band: cfg.FeatureBand})

	out, fallbackErr := openOutput(cfg.LogFilePath, cfg)
	logger.SetOutput(out)
	if fallbackErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(fallbackErr.Error())
	}

	// 第三方库经由全局 logrus 打印的内容保持同样格式与去向。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(level)

	return logger, nil
}

func openOutput(path string, cfg config.GlobalConfig) (io.Writer, error) {
	if path == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

// rootHook 为每条日志补充安装根与当前 band。
type rootHook struct {
	root string
	band string
}

func (rootHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h rootHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["install_root"]; !ok && h.root != "" {
		entry.Data["install_root"] = h.root
	}
	if _, ok := entry.Data["feature_band"]; !ok && h.band != "" {
		entry.Data["feature_band"] = h.band
	}
	return nil
}
