package service

import (
	"fmt"
	"sync"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Source 帧来源，Next 返回的 Mat 归调用方所有
type Source interface {
	Next() (gocv.Mat, error)
	Close() error
}

// Camera 负责一个采集设备
type Camera struct {
	cfg     config.CameraConfig
	capture *gocv.VideoCapture

	mu     sync.Mutex
	closed bool
}

var captureAPIs = map[string]gocv.VideoCaptureAPI{
	"any":       gocv.VideoCaptureAny,
	"dshow":     gocv.VideoCaptureDshow,
	"msmf":      gocv.VideoCaptureMSMF,
	"v4l2":      gocv.VideoCaptureV4L2,
	"gstreamer": gocv.VideoCaptureGstreamer,
}

// OpenCamera 打开设备，失败时返回 model.ErrDeviceUnavailable
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	api, ok := captureAPIs[cfg.API]
	if !ok {
		return nil, fmt.Errorf("%w: unknown capture api %q", model.ErrDeviceUnavailable, cfg.API)
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(cfg.DeviceIndex, api)
	if err != nil {
		if capture != nil {
			capture.Close()
		}
		return nil, fmt.Errorf("%w: camera %d: %v", model.ErrDeviceUnavailable, cfg.DeviceIndex, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: camera %d could not be opened", model.ErrDeviceUnavailable, cfg.DeviceIndex)
	}

	// 设备可能不支持该分辨率，实际尺寸以读取为准
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	utils.Camera(cfg.Name).Info("camera opened",
		zap.Int("device_index", cfg.DeviceIndex),
		zap.String("api", cfg.API),
		zap.Int("requested_width", cfg.Width),
		zap.Int("requested_height", cfg.Height),
		zap.Float64("actual_width", capture.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("actual_height", capture.Get(gocv.VideoCaptureFrameHeight)))

	return &Camera{cfg: cfg, capture: capture}, nil
}

// Next 阻塞读取一帧，读取失败视为流结束
func (c *Camera) Next() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return gocv.Mat{}, model.ErrEndOfStream
	}

	frame := gocv.NewMat()
	if ok := c.capture.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.Mat{}, model.ErrEndOfStream
	}
	return frame, nil
}

// Close 释放设备，可重复调用
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	utils.Camera(c.cfg.Name).Info("camera released", zap.Int("device_index", c.cfg.DeviceIndex))
	return c.capture.Close()
}
