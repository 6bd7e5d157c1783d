package stream

import (
	"fmt"
	"io"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
)

// ContentType 流响应头，分隔符与分片一致
const ContentType = "multipart/x-mixed-replace; boundary=" + model.Boundary

// Frame 按 multipart 格式组装一个分片
func Frame(c *model.Chunk) []byte {
	header := fmt.Sprintf("--%s\r\nContent-Type: %s\r\n\r\n", c.Boundary, c.ContentType)
	buf := make([]byte, 0, len(header)+len(c.Payload)+2)
	buf = append(buf, header...)
	buf = append(buf, c.Payload...)
	buf = append(buf, '\r', '\n')
	return buf
}

// WriteChunk 写出一个分片
func WriteChunk(w io.Writer, c *model.Chunk) error {
	_, err := w.Write(Frame(c))
	return err
}
