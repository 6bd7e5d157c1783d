package model

import "errors"

var (
	// ErrDeviceUnavailable 摄像头无法打开，该管线不启动
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrEndOfStream 帧序列正常结束
	ErrEndOfStream = errors.New("end of stream")
	// ErrInference 推理失败
	ErrInference = errors.New("inference failure")
	// ErrEncoding 编码失败
	ErrEncoding = errors.New("encoding failure")
)
