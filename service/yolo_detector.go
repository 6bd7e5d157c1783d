package service

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// classOffset 按类别平移检测框，使 NMS 只在同类之间抑制
const classOffset = 4096

// YOLODetector 基于 OpenCV DNN 的 YOLOv5 检测器，非并发安全
type YOLODetector struct {
	net           gocv.Net
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
}

// NewYOLODetector 加载 ONNX/Darknet 模型
func NewYOLODetector(cfg *config.DetectorConfig) (*YOLODetector, error) {
	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model %s", cfg.ModelPath)
	}

	if cfg.Compute == config.ComputeCUDA {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	utils.Logger.Info("detector loaded",
		zap.String("backend", config.BackendYOLO),
		zap.String("model", cfg.ModelPath),
		zap.String("compute", cfg.Compute),
		zap.Int("input_size", cfg.InputSize))

	return &YOLODetector{
		net:           net,
		inputSize:     cfg.InputSize,
		confThreshold: float32(cfg.ConfidenceThreshold),
		nmsThreshold:  float32(cfg.NMSThreshold),
	}, nil
}

// Detect 输入为 RGB 图像，结果按置信度降序
func (d *YOLODetector) Detect(_ context.Context, img gocv.Mat) ([]model.Detection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty input", model.ErrInference)
	}

	lb := newLetterbox(img.Cols(), img.Rows(), d.inputSize)
	padded := gocv.NewMat()
	defer padded.Close()
	lb.apply(img, &padded)

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("%w: empty network output", model.ErrInference)
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInference, err)
	}
	dims := out.Size()
	stride := dims[len(dims)-1]
	if stride <= 5 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", model.ErrInference, dims)
	}

	return decodeYOLO(data, stride, lb, d.confThreshold, d.nmsThreshold), nil
}

// letterbox 等比缩放到 size×size，不足部分用灰色填充
type letterbox struct {
	scale      float32
	padX, padY int
	width      int
	height     int
	size       int
}

var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 0}

func newLetterbox(frameWidth, frameHeight, size int) letterbox {
	scale := min(float32(size)/float32(frameWidth), float32(size)/float32(frameHeight))
	w := int(float32(frameWidth)*scale + 0.5)
	h := int(float32(frameHeight)*scale + 0.5)
	return letterbox{
		scale:  scale,
		padX:   (size - w) / 2,
		padY:   (size - h) / 2,
		width:  w,
		height: h,
		size:   size,
	}
}

func (lb letterbox) apply(src gocv.Mat, dst *gocv.Mat) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(lb.width, lb.height), 0, 0, gocv.InterpolationLinear)

	gocv.CopyMakeBorder(resized, dst,
		lb.padY, lb.size-lb.height-lb.padY,
		lb.padX, lb.size-lb.width-lb.padX,
		gocv.BorderConstant, letterboxFill)
}

// toFrame 把网络输入坐标还原到源帧
func (lb letterbox) toFrame(x, y float32) (int, int) {
	return int((x - float32(lb.padX)) / lb.scale), int((y - float32(lb.padY)) / lb.scale)
}

// decodeYOLO 解析 [cx, cy, w, h, obj, cls...] 行并做按类 NMS
func decodeYOLO(data []float32, stride int, lb letterbox, confThreshold, nmsThreshold float32) []model.Detection {
	var (
		candidates []model.Detection
		boxes      []image.Rectangle
		scores     []float32
	)

	for off := 0; off+stride <= len(data); off += stride {
		row := data[off : off+stride]
		objectness := row[4]
		if objectness < confThreshold {
			continue
		}

		classID, best := 0, row[5]
		for i, s := range row[6:] {
			if s > best {
				classID, best = i+1, s
			}
		}
		conf := objectness * best
		if conf < confThreshold {
			continue
		}

		cx, cy, w, h := row[0], row[1], row[2], row[3]
		xMin, yMin := lb.toFrame(cx-w/2, cy-h/2)
		xMax, yMax := lb.toFrame(cx+w/2, cy+h/2)
		box := model.Box{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
		candidates = append(candidates, model.Detection{ClassID: classID, Box: box, Confidence: float64(conf)})

		shift := classID * classOffset
		boxes = append(boxes, image.Rect(box.XMin+shift, box.YMin+shift, box.XMax+shift, box.YMax+shift))
		scores = append(scores, conf)
	}

	if len(candidates) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores, confThreshold, nmsThreshold)
	detections := make([]model.Detection, 0, len(keep))
	for _, idx := range keep {
		detections = append(detections, candidates[idx])
	}
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	return detections
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}
