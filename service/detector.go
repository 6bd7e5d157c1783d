package service

import (
	"context"
	"fmt"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Detector 推理能力：输入 RGB 图像，按输出顺序返回检测结果
type Detector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]model.Detection, error)
	Close() error
}

// NewDetector 按配置加载 max_concurrent 个独立的检测后端，由 Gate 分配
func NewDetector(cfg *config.DetectorConfig) (*Gate, error) {
	copies := cfg.MaxConcurrent
	if copies < 1 {
		copies = 1
	}

	backends := make([]Detector, 0, copies)
	for i := 0; i < copies; i++ {
		backend, err := newBackend(cfg)
		if err != nil {
			var closeErr error
			for _, b := range backends {
				closeErr = multierr.Append(closeErr, b.Close())
			}
			return nil, multierr.Append(err, closeErr)
		}
		backends = append(backends, backend)
	}

	return NewGate(backends...), nil
}

func newBackend(cfg *config.DetectorConfig) (Detector, error) {
	switch cfg.Backend {
	case config.BackendYOLO:
		return NewYOLODetector(cfg)
	case config.BackendCascade:
		return NewCascadeDetector(cfg.CascadePath)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}
