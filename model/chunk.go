package model

const (
	// ContentTypeJPEG 每个分片的内容类型
	ContentTypeJPEG = "image/jpeg"
	// Boundary 分片分隔符，响应头与分片共用
	Boundary = "frame"
)

// Chunk 一帧编码后的图像分片
type Chunk struct {
	CameraName  string
	Seq         uint64
	ContentType string
	Boundary    string
	Payload     []byte

	// Annotated 本帧绘制的检测，未绘制时为 nil
	Annotated *Detection
}

// NewChunk 创建JPEG分片
func NewChunk(camera string, seq uint64, payload []byte) *Chunk {
	return &Chunk{
		CameraName:  camera,
		Seq:         seq,
		ContentType: ContentTypeJPEG,
		Boundary:    Boundary,
		Payload:     payload,
	}
}
