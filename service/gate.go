package service

import (
	"context"
	"fmt"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Gate 持有一组互相独立的检测器副本，每次调用独占其中一个。
// gocv 的 Net 与 CascadeClassifier 不能并发调用，副本数即最大并发数。
type Gate struct {
	backends []Detector
	pool     chan Detector
}

// NewGate 至少需要一个副本
func NewGate(backends ...Detector) *Gate {
	if len(backends) == 0 {
		panic("service: NewGate needs at least one detector")
	}
	g := &Gate{
		backends: backends,
		pool:     make(chan Detector, len(backends)),
	}
	for _, d := range backends {
		g.pool <- d
	}
	return g
}

// Size 副本数
func (g *Gate) Size() int {
	return len(g.backends)
}

// Detect 等待空闲副本后调用，推理本身不会被中断
func (g *Gate) Detect(ctx context.Context, img gocv.Mat) ([]model.Detection, error) {
	var d Detector
	select {
	case d = <-g.pool:
		defer func() { g.pool <- d }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for detector: %v", model.ErrInference, ctx.Err())
	}

	return d.Detect(ctx, img)
}

// Close 关闭所有副本，须在所有 Detect 返回之后调用
func (g *Gate) Close() error {
	var err error
	for _, d := range g.backends {
		err = multierr.Append(err, d.Close())
	}
	return err
}
