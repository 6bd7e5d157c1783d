package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "UGCV"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Detector DetectorConfig `mapstructure:"detector"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cameras  []CameraConfig `mapstructure:"cameras"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type DetectorConfig struct {
	Backend             string  `mapstructure:"backend"`
	ModelPath           string  `mapstructure:"model_path"`
	ConfigPath          string  `mapstructure:"config_path"`
	InputSize           int     `mapstructure:"input_size"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	NMSThreshold        float64 `mapstructure:"nms_threshold"`
	Compute             string  `mapstructure:"compute"`
	CascadePath         string  `mapstructure:"cascade_path"`
	MaxConcurrent       int     `mapstructure:"max_concurrent"`
}

type PipelineConfig struct {
	TargetClass   int    `mapstructure:"target_class"`
	Label         string `mapstructure:"label"`
	FailurePolicy string `mapstructure:"failure_policy"`
	JPEGQuality   int    `mapstructure:"jpeg_quality"`
}

// CameraConfig 单个摄像头配置，管线启动后不可变
type CameraConfig struct {
	Name        string `mapstructure:"name"`
	DeviceIndex int    `mapstructure:"device_index"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	API         string `mapstructure:"api"`
}

const (
	BackendYOLO    = "yolo"
	BackendCascade = "cascade"

	PolicyFatal = "fatal"
	PolicySkip  = "skip"

	ComputeCPU  = "cpu"
	ComputeCUDA = "cuda"
)

// CaptureAPIs 支持的采集后端
var CaptureAPIs = []string{"any", "dshow", "msmf", "v4l2", "gstreamer"}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，使用默认值与环境变量
		cfg, err = unmarshal(newViper())
		if err != nil {
			return getDefaultConfig()
		}
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i := range cfg.Cameras {
		cfg.Cameras[i].applyDefaults()
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := getDefaultConfig()

	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.mode", def.Server.Mode)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)

	v.SetDefault("redis.enabled", def.Redis.Enabled)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.password", def.Redis.Password)
	v.SetDefault("redis.db", def.Redis.DB)
	v.SetDefault("redis.ttl", def.Redis.TTL)
	v.SetDefault("redis.key_prefix", def.Redis.KeyPrefix)

	v.SetDefault("detector.backend", def.Detector.Backend)
	v.SetDefault("detector.model_path", def.Detector.ModelPath)
	v.SetDefault("detector.config_path", def.Detector.ConfigPath)
	v.SetDefault("detector.input_size", def.Detector.InputSize)
	v.SetDefault("detector.confidence_threshold", def.Detector.ConfidenceThreshold)
	v.SetDefault("detector.nms_threshold", def.Detector.NMSThreshold)
	v.SetDefault("detector.compute", def.Detector.Compute)
	v.SetDefault("detector.cascade_path", def.Detector.CascadePath)
	v.SetDefault("detector.max_concurrent", def.Detector.MaxConcurrent)

	v.SetDefault("pipeline.target_class", def.Pipeline.TargetClass)
	v.SetDefault("pipeline.label", def.Pipeline.Label)
	v.SetDefault("pipeline.failure_policy", def.Pipeline.FailurePolicy)
	v.SetDefault("pipeline.jpeg_quality", def.Pipeline.JPEGQuality)

	cameras := make([]map[string]any, 0, len(def.Cameras))
	for _, c := range def.Cameras {
		cameras = append(cameras, map[string]any{
			"name":         c.Name,
			"device_index": c.DeviceIndex,
			"width":        c.Width,
			"height":       c.Height,
			"api":          c.API,
		})
	}
	v.SetDefault("cameras", cameras)
}

func (c *CameraConfig) applyDefaults() {
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.API == "" {
		c.API = "any"
	}
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":5000",
			Mode:            "debug",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			TTL:       time.Minute,
			KeyPrefix: "ugcv:camera:",
		},
		Detector: DetectorConfig{
			Backend:             BackendYOLO,
			ModelPath:           "yolov5s.onnx",
			InputSize:           640,
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
			Compute:             ComputeCPU,
			CascadePath:         "haarcascade_fullbody.xml",
			MaxConcurrent:       1,
		},
		Pipeline: PipelineConfig{
			TargetClass:   0,
			Label:         "Human",
			FailurePolicy: PolicyFatal,
			JPEGQuality:   95,
		},
		Cameras: []CameraConfig{
			{Name: "video1", DeviceIndex: 0, Width: 1280, Height: 720, API: "any"},
			{Name: "video2", DeviceIndex: 1, Width: 1280, Height: 720, API: "any"},
		},
	}
}
