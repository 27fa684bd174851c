package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// PackFields 提供 pack id/版本/band 字段，供命令日志复用。
func PackFields(id, version, band string) logrus.Fields {
	return logrus.Fields{
		"pack_id":      id,
		"pack_version": version,
		"band":         band,
	}
}
