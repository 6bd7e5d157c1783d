package service

import (
	"context"
	"errors"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/stream"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"go.uber.org/zap"
)

// Runner 将一个管线绑定到它的发布端点并上报状态
type Runner struct {
	camera    config.CameraConfig
	pipeline  *Pipeline
	publisher *stream.Publisher
	status    *StatusStore
	logger    *zap.Logger
}

// OpenRunner 打开摄像头并创建管线。
// 设备不可用时关闭发布端点、记录状态并返回错误，该端点不会产生任何分片。
func OpenRunner(ctx context.Context, camera config.CameraConfig, detector Detector, opts PipelineOptions,
	publisher *stream.Publisher, status *StatusStore) (*Runner, error) {
	status.Update(ctx, model.CameraStatus{
		Name:        camera.Name,
		DeviceIndex: camera.DeviceIndex,
		State:       model.CameraStarting,
	})

	source, err := OpenCamera(camera)
	if err != nil {
		publisher.Close()
		status.Update(ctx, model.CameraStatus{
			Name:        camera.Name,
			DeviceIndex: camera.DeviceIndex,
			State:       model.CameraUnavailable,
			LastError:   err.Error(),
		})
		return nil, err
	}

	pipeline := NewPipeline(camera.Name, source, detector, opts)
	return NewRunner(camera, pipeline, publisher, status), nil
}

func NewRunner(camera config.CameraConfig, pipeline *Pipeline, publisher *stream.Publisher, status *StatusStore) *Runner {
	return &Runner{
		camera:    camera,
		pipeline:  pipeline,
		publisher: publisher,
		status:    status,
		logger:    utils.Camera(camera.Name),
	}
}

// Run 运行直到流结束、管线失败或 ctx 取消，返回前释放摄像头。
// 单个摄像头的失败不会作为错误返回，避免影响其他摄像头。
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.pipeline.Close(); err != nil {
			r.logger.Warn("failed to release camera", zap.Error(err))
		}
	}()

	r.report(ctx, model.CameraStreaming, nil)
	r.logger.Info("pipeline started")

	stop := make(chan struct{})
	heartbeatDone := make(chan struct{})
	go r.heartbeat(ctx, stop, heartbeatDone)

	start := time.Now()
	err := r.publisher.Run(ctx, r.pipeline)

	close(stop)
	<-heartbeatDone

	// ctx 可能已取消，最终状态使用独立的 context
	finalCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats := r.publisher.Stats()
	fields := []zap.Field{
		zap.Uint64("published", stats.Published),
		zap.Uint64("skipped", r.pipeline.Skipped()),
		zap.Duration("uptime", time.Since(start)),
	}

	switch {
	case err != nil:
		r.report(finalCtx, model.CameraFailed, err)
		r.logger.Error("pipeline terminated", append(fields, zap.Error(err))...)
	case errors.Is(ctx.Err(), context.Canceled):
		r.report(finalCtx, model.CameraStopped, nil)
		r.logger.Info("pipeline stopped by shutdown", fields...)
	default:
		r.report(finalCtx, model.CameraStopped, nil)
		r.logger.Info("pipeline reached end of stream", fields...)
	}

	return nil
}

func (r *Runner) heartbeat(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := r.status.HeartbeatInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(ctx, model.CameraStreaming, nil)
		}
	}
}

func (r *Runner) report(ctx context.Context, state model.CameraState, err error) {
	stats := r.publisher.Stats()
	status := model.CameraStatus{
		Name:        r.camera.Name,
		DeviceIndex: r.camera.DeviceIndex,
		State:       state,
		Published:   stats.Published,
		Replaced:    stats.Replaced,
		Skipped:     r.pipeline.Skipped(),
		Subscribers: stats.Subscribers,
	}
	if err != nil {
		status.LastError = err.Error()
	}
	r.status.Update(ctx, status)
}
