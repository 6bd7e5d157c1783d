package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusStore 记录各摄像头运行状态，可选同步到 Redis 供外部查看。
// 只保存带 TTL 的运行时状态，不保存检测结果或视频。
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]model.CameraStatus
	order    []string

	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewStatusStore 创建状态存储，未启用 Redis 时仅在内存中保存
func NewStatusStore(cfg *config.RedisConfig) *StatusStore {
	s := &StatusStore{
		statuses: make(map[string]model.CameraStatus),
		ttl:      cfg.TTL,
		prefix:   cfg.KeyPrefix,
	}
	if cfg.Enabled {
		s.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return s
}

// Ping 检查 Redis 连接，失败后停用同步
func (s *StatusStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// Mirrored 是否同步到 Redis
func (s *StatusStore) Mirrored() bool {
	return s.client != nil
}

// HeartbeatInterval 刷新 Redis TTL 的间隔
func (s *StatusStore) HeartbeatInterval() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	return s.ttl / 2
}

// Update 更新摄像头状态
func (s *StatusStore) Update(ctx context.Context, status model.CameraStatus) {
	status.UpdatedAt = time.Now().Unix()

	s.mu.Lock()
	if _, ok := s.statuses[status.Name]; !ok {
		s.order = append(s.order, status.Name)
	}
	s.statuses[status.Name] = status
	s.mu.Unlock()

	if s.client == nil {
		return
	}
	if err := s.setRemote(ctx, status); err != nil {
		utils.Logger.Warn("failed to mirror camera status",
			zap.String("camera", status.Name), zap.Error(err))
	}
}

// Get 获取单个摄像头状态
func (s *StatusStore) Get(name string) (model.CameraStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[name]
	return status, ok
}

// List 按注册顺序返回所有状态
func (s *StatusStore) List() []model.CameraStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]model.CameraStatus, 0, len(s.order))
	for _, name := range s.order {
		list = append(list, s.statuses[name])
	}
	return list
}

func (s *StatusStore) setRemote(ctx context.Context, status model.CameraStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+status.Name, data, s.ttl).Err()
}

// Remote 从 Redis 读取状态，未命中返回 nil
func (s *StatusStore) Remote(ctx context.Context, name string) (*model.CameraStatus, error) {
	if s.client == nil {
		return nil, nil
	}
	data, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 未命中
		}
		return nil, err
	}

	var status model.CameraStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *StatusStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
