package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" && c.Server.Mode != "test" {
		errs = append(errs, fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode))
	}

	switch c.Detector.Backend {
	case BackendYOLO:
		if c.Detector.ModelPath == "" {
			errs = append(errs, errors.New("detector.model_path is required for the yolo backend"))
		}
		if c.Detector.InputSize <= 0 {
			errs = append(errs, fmt.Errorf("detector.input_size must be positive, got %d", c.Detector.InputSize))
		}
	case BackendCascade:
		if c.Detector.CascadePath == "" {
			errs = append(errs, errors.New("detector.cascade_path is required for the cascade backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("detector.backend must be %s or %s, got %q", BackendYOLO, BackendCascade, c.Detector.Backend))
	}
	if c.Detector.Compute != ComputeCPU && c.Detector.Compute != ComputeCUDA {
		errs = append(errs, fmt.Errorf("detector.compute must be %s or %s, got %q", ComputeCPU, ComputeCUDA, c.Detector.Compute))
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.confidence_threshold out of range: %v", c.Detector.ConfidenceThreshold))
	}
	if c.Detector.NMSThreshold < 0 || c.Detector.NMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("detector.nms_threshold out of range: %v", c.Detector.NMSThreshold))
	}
	if c.Detector.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("detector.max_concurrent must be at least 1, got %d", c.Detector.MaxConcurrent))
	}

	if c.Pipeline.FailurePolicy != PolicyFatal && c.Pipeline.FailurePolicy != PolicySkip {
		errs = append(errs, fmt.Errorf("pipeline.failure_policy must be %s or %s, got %q", PolicyFatal, PolicySkip, c.Pipeline.FailurePolicy))
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("pipeline.jpeg_quality must be within 1..100, got %d", c.Pipeline.JPEGQuality))
	}
	if c.Pipeline.TargetClass < 0 {
		errs = append(errs, fmt.Errorf("pipeline.target_class must not be negative, got %d", c.Pipeline.TargetClass))
	}

	if len(c.Cameras) == 0 {
		errs = append(errs, errors.New("at least one camera is required"))
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.Name == "" {
			errs = append(errs, fmt.Errorf("cameras[%d].name is required", i))
		} else if seen[cam.Name] {
			errs = append(errs, fmt.Errorf("cameras[%d].name %q is duplicated", i, cam.Name))
		}
		seen[cam.Name] = true

		if cam.DeviceIndex < 0 {
			errs = append(errs, fmt.Errorf("cameras[%d].device_index must not be negative", i))
		}
		if cam.Width <= 0 || cam.Height <= 0 {
			errs = append(errs, fmt.Errorf("cameras[%d] resolution must be positive, got %dx%d", i, cam.Width, cam.Height))
		}
		if !slices.Contains(CaptureAPIs, cam.API) {
			errs = append(errs, fmt.Errorf("cameras[%d].api %q is not one of %v", i, cam.API, CaptureAPIs))
		}
	}

	return errors.Join(errs...)
}
