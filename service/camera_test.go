package service

import (
	"errors"
	"testing"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
)

func TestOpenCameraUnknownAPI(t *testing.T) {
	cam, err := OpenCamera(config.CameraConfig{Name: "video1", DeviceIndex: 0, Width: 1280, Height: 720, API: "qt"})
	if !errors.Is(err, model.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if cam != nil {
		t.Error("no camera should be returned")
	}
}

func TestOpenCameraMissingDevice(t *testing.T) {
	cam, err := OpenCamera(config.CameraConfig{Name: "ghost", DeviceIndex: 97, Width: 1280, Height: 720, API: "any"})
	if err == nil {
		cam.Close()
		t.Skip("device 97 exists on this machine")
	}
	if !errors.Is(err, model.ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
}
