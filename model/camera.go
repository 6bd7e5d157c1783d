package model

// CameraState 摄像头管线状态
type CameraState string

const (
	CameraStarting    CameraState = "starting"
	CameraStreaming   CameraState = "streaming"
	CameraUnavailable CameraState = "unavailable"
	CameraStopped     CameraState = "stopped"
	CameraFailed      CameraState = "failed"
)

// CameraStatus 摄像头运行状态
type CameraStatus struct {
	Name        string      `json:"name"`
	DeviceIndex int         `json:"device_index"`
	State       CameraState `json:"state"`
	Published   uint64      `json:"published"`
	Replaced    uint64      `json:"replaced"`
	Skipped     uint64      `json:"skipped"`
	Subscribers int         `json:"subscribers"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   int64       `json:"updated_at"`
}

// CameraListResponse 摄像头列表响应
type CameraListResponse struct {
	Success bool           `json:"success"`
	Data    []CameraStatus `json:"data"`
}

// CameraResponse 单个摄像头响应
type CameraResponse struct {
	Success bool          `json:"success"`
	Data    *CameraStatus `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
