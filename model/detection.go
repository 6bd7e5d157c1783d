package model

import "image"

// Box 检测框，源帧像素坐标
type Box struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Rect 转换为 image.Rectangle，不做裁剪
func (b Box) Rect() image.Rectangle {
	return image.Rectangle{
		Min: image.Point{X: b.XMin, Y: b.YMin},
		Max: image.Point{X: b.XMax, Y: b.YMax},
	}
}

// Detection 单个检测结果
type Detection struct {
	ClassID    int     `json:"class_id"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// DetectionEvent 实时检测事件，仅推送不存储
type DetectionEvent struct {
	Camera    string    `json:"camera"`
	Seq       uint64    `json:"seq"`
	Detection Detection `json:"detection"`
	Matches   int       `json:"matches"`
	Timestamp int64     `json:"timestamp"`
}
