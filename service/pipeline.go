package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var annotationColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

const (
	boxThickness   = 2
	labelThickness = 2
	labelScale     = 0.5
	labelOffsetY   = 5
)

// PipelineOptions 管线参数
type PipelineOptions struct {
	TargetClass   int
	Label         string
	FailurePolicy string
	JPEGQuality   int

	// OnDetection 每个绘制了检测框的帧调用一次
	OnDetection func(model.DetectionEvent)
}

// OptionsFromConfig 由配置生成管线参数
func OptionsFromConfig(cfg *config.PipelineConfig) PipelineOptions {
	return PipelineOptions{
		TargetClass:   cfg.TargetClass,
		Label:         cfg.Label,
		FailurePolicy: cfg.FailurePolicy,
		JPEGQuality:   cfg.JPEGQuality,
	}
}

// Pipeline 单个摄像头的 采集→镜像→转色→推理→标注→编码 链路。
// 顺序执行，不可重启，Next 不能并发调用。
type Pipeline struct {
	name     string
	source   Source
	detector Detector
	opts     PipelineOptions
	logger   *zap.Logger

	seq      uint64
	terminal error
	skipped  atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

func NewPipeline(name string, source Source, detector Detector, opts PipelineOptions) *Pipeline {
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.PolicyFatal
	}
	return &Pipeline{
		name:     name,
		source:   source,
		detector: detector,
		opts:     opts,
		logger:   utils.Camera(name),
	}
}

func (p *Pipeline) Name() string {
	return p.name
}

// Skipped 在 skip 策略下被丢弃的帧数
func (p *Pipeline) Skipped() uint64 {
	return p.skipped.Load()
}

// Next 拉取并处理下一帧。流结束返回 model.ErrEndOfStream；
// 终止后每次调用都返回同一个错误。
func (p *Pipeline) Next(ctx context.Context) (*model.Chunk, error) {
	if p.terminal != nil {
		return nil, p.terminal
	}

	for {
		frame, err := p.source.Next()
		if err != nil {
			if !errors.Is(err, model.ErrEndOfStream) {
				err = fmt.Errorf("%w: %v", model.ErrEndOfStream, err)
			}
			p.logger.Info("camera stream ended", zap.Uint64("frames", p.seq))
			return nil, p.terminate(err)
		}

		chunk, err := p.process(ctx, frame)
		frame.Close()
		if err == nil {
			return chunk, nil
		}

		if p.opts.FailurePolicy == config.PolicySkip && ctx.Err() == nil {
			p.skipped.Add(1)
			p.logger.Warn("frame skipped", zap.Error(err), zap.Uint64("skipped", p.skipped.Load()))
			continue
		}

		p.logger.Error("pipeline failed", zap.Error(err), zap.Uint64("frames", p.seq))
		return nil, p.terminate(err)
	}
}

// process 处理一帧，不修改传入的 frame
func (p *Pipeline) process(ctx context.Context, frame gocv.Mat) (*model.Chunk, error) {
	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(frame, &mirrored, 1)

	// 推理与绘制使用不同的缓冲
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mirrored, &rgb, gocv.ColorBGRToRGB)

	detections, err := p.detector.Detect(ctx, rgb)
	if err != nil {
		if !errors.Is(err, model.ErrInference) {
			err = fmt.Errorf("%w: %v", model.ErrInference, err)
		}
		return nil, err
	}

	match, matches := firstMatch(detections, p.opts.TargetClass)
	if match != nil {
		p.annotate(&mirrored, match)
	}

	payload, err := p.encode(mirrored)
	if err != nil {
		return nil, err
	}

	p.seq++
	chunk := model.NewChunk(p.name, p.seq, payload)
	chunk.Annotated = match

	if match != nil && p.opts.OnDetection != nil {
		p.opts.OnDetection(model.DetectionEvent{
			Camera:    p.name,
			Seq:       p.seq,
			Detection: *match,
			Matches:   matches,
			Timestamp: time.Now().UnixMilli(),
		})
	}

	return chunk, nil
}

// firstMatch 返回第一个目标类别的检测及该类别总数。
// 每帧最多标注一个目标。
func firstMatch(detections []model.Detection, targetClass int) (*model.Detection, int) {
	var (
		first   *model.Detection
		matches int
	)
	for i := range detections {
		if detections[i].ClassID != targetClass {
			continue
		}
		matches++
		if first == nil {
			d := detections[i]
			first = &d
		}
	}
	return first, matches
}

// annotate 在镜像帧上绘制框和标签，坐标不裁剪
func (p *Pipeline) annotate(img *gocv.Mat, d *model.Detection) {
	gocv.Rectangle(img, d.Box.Rect(), annotationColor, boxThickness)
	if p.opts.Label != "" {
		org := image.Pt(d.Box.XMin, d.Box.YMin-labelOffsetY)
		gocv.PutText(img, p.opts.Label, org, gocv.FontHersheySimplex, labelScale, annotationColor, labelThickness)
	}
}

func (p *Pipeline) encode(img gocv.Mat) ([]byte, error) {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if p.opts.JPEGQuality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), p.opts.JPEGQuality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, img)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEncoding, err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty jpeg", model.ErrEncoding)
	}
	return data, nil
}

func (p *Pipeline) terminate(err error) error {
	p.terminal = err
	if closeErr := p.Close(); closeErr != nil {
		p.logger.Warn("failed to release camera", zap.Error(closeErr))
	}
	return err
}

// Close 释放摄像头，可重复调用，须与 Next 在同一个 goroutine
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.source.Close()
		if p.terminal == nil {
			p.terminal = model.ErrEndOfStream
		}
	})
	return p.closeErr
}
