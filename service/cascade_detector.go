package service

import (
	"context"
	"fmt"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// personClass 级联检测只输出人像类别
const personClass = 0

// CascadeDetector 基于 Haar 级联的人体检测，无需模型文件之外的依赖
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

// NewCascadeDetector 加载级联文件，例如 haarcascade_fullbody.xml
func NewCascadeDetector(path string) (*CascadeDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", path)
	}

	utils.Logger.Info("detector loaded",
		zap.String("backend", config.BackendCascade),
		zap.String("cascade", path))

	return &CascadeDetector{classifier: classifier}, nil
}

// Detect 输入为 RGB 图像
func (d *CascadeDetector) Detect(_ context.Context, img gocv.Mat) ([]model.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty input", model.ErrInference)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorRGBToGray)
	gocv.EqualizeHist(gray, &gray)

	rects := d.classifier.DetectMultiScale(gray)
	detections := make([]model.Detection, 0, len(rects))
	for _, r := range rects {
		detections = append(detections, model.Detection{
			ClassID:    personClass,
			Box:        model.Box{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y},
			Confidence: 1.0,
		})
	}
	return detections, nil
}

func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
