package handler

import (
	"errors"
	"net/http"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/stream"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StreamHandler 每个摄像头一个 MJPEG 端点
type StreamHandler struct {
	publishers map[string]*stream.Publisher
	names      []string
}

// NewStreamHandler 按传入顺序注册端点
func NewStreamHandler(publishers ...*stream.Publisher) *StreamHandler {
	h := &StreamHandler{publishers: make(map[string]*stream.Publisher, len(publishers))}
	for _, p := range publishers {
		h.publishers[p.Name()] = p
		h.names = append(h.names, p.Name())
	}
	return h
}

// Register 为每个摄像头注册 GET /<name>
func (h *StreamHandler) Register(r gin.IRoutes) {
	for _, name := range h.names {
		r.GET("/"+name, h.Serve(h.publishers[name]))
	}
}

// Names 摄像头名称，保持注册顺序
func (h *StreamHandler) Names() []string {
	return append([]string(nil), h.names...)
}

func (h *StreamHandler) Publisher(name string) (*stream.Publisher, bool) {
	p, ok := h.publishers[name]
	return p, ok
}

// Serve 持续推送分片，直到客户端断开或流结束。
// 客户端只会收到连接之后发布的分片。
func (h *StreamHandler) Serve(p *stream.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := utils.SubscriberID(p.Name())
		sub, err := p.Subscribe(id)

		c.Header("Content-Type", stream.ContentType)
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		if err != nil {
			if !errors.Is(err, stream.ErrClosed) {
				utils.Logger.Warn("subscribe failed", zap.String("camera", p.Name()), zap.Error(err))
			}
			return
		}
		defer p.Unsubscribe(id)

		logger := utils.Camera(p.Name()).With(zap.String("subscriber", id))
		logger.Debug("client connected", zap.String("ip", c.ClientIP()))

		ctx := c.Request.Context()
		var sent uint64
		for {
			chunk, ok := sub.Next(ctx)
			if !ok {
				break
			}
			if err := stream.WriteChunk(c.Writer, chunk); err != nil {
				logger.Debug("client write failed", zap.Error(err))
				break
			}
			c.Writer.Flush()
			sent++
		}

		logger.Debug("client disconnected", zap.Uint64("sent", sent))
	}
}
