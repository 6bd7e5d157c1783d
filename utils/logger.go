package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 全局日志，初始化前为空实现
var Logger = zap.NewNop()

func InitLogger(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// Camera 返回带摄像头名称的子日志
func Camera(name string) *zap.Logger {
	return Logger.With(zap.String("camera", name))
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
