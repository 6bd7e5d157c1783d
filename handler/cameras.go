package handler

import (
	"context"
	"net/http"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusSource 摄像头状态来源
type StatusSource interface {
	List() []model.CameraStatus
	Get(name string) (model.CameraStatus, bool)
	Remote(ctx context.Context, name string) (*model.CameraStatus, error)
}

type CameraHandler struct {
	status  StatusSource
	streams *StreamHandler
}

func NewCameraHandler(status StatusSource, streams *StreamHandler) *CameraHandler {
	return &CameraHandler{status: status, streams: streams}
}

// List 返回所有摄像头状态
func (h *CameraHandler) List(c *gin.Context) {
	list := h.status.List()
	for i := range list {
		h.live(&list[i])
	}
	c.JSON(http.StatusOK, model.CameraListResponse{
		Success: true,
		Data:    list,
	})
}

// Get 返回单个摄像头状态，本地没有时查询 Redis 镜像
func (h *CameraHandler) Get(c *gin.Context) {
	name := c.Param("name")

	if status, ok := h.status.Get(name); ok {
		h.live(&status)
		c.JSON(http.StatusOK, model.CameraResponse{Success: true, Data: &status})
		return
	}

	remote, err := h.status.Remote(c.Request.Context(), name)
	if err != nil {
		utils.Logger.Warn("failed to read mirrored status", zap.String("camera", name), zap.Error(err))
	}
	if remote != nil {
		c.JSON(http.StatusOK, model.CameraResponse{Success: true, Data: remote})
		return
	}

	c.JSON(http.StatusNotFound, model.ErrorResponse{
		Success: false,
		Message: "摄像头不存在",
	})
}

// live 用发布端点的实时计数覆盖上次上报的值
func (h *CameraHandler) live(status *model.CameraStatus) {
	if h.streams == nil {
		return
	}
	p, ok := h.streams.Publisher(status.Name)
	if !ok {
		return
	}
	stats := p.Stats()
	status.Published = stats.Published
	status.Replaced = stats.Replaced
	status.Subscribers = stats.Subscribers
}
