package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/config"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
)

func memoryStatus() *StatusStore {
	return NewStatusStore(&config.RedisConfig{Enabled: false, TTL: time.Minute, KeyPrefix: "test:"})
}

func TestStatusStoreKeepsOrder(t *testing.T) {
	s := memoryStatus()
	ctx := context.Background()

	s.Update(ctx, model.CameraStatus{Name: "video2", State: model.CameraStarting})
	s.Update(ctx, model.CameraStatus{Name: "video1", State: model.CameraStarting})
	s.Update(ctx, model.CameraStatus{Name: "video2", State: model.CameraStreaming, Published: 7})

	list := s.List()
	if len(list) != 2 || list[0].Name != "video2" || list[1].Name != "video1" {
		t.Fatalf("list = %+v", list)
	}
	got, ok := s.Get("video2")
	if !ok || got.State != model.CameraStreaming || got.Published != 7 {
		t.Errorf("video2 = %+v, %v", got, ok)
	}
	if got.UpdatedAt == 0 {
		t.Error("UpdatedAt not set")
	}
	if _, ok := s.Get("video3"); ok {
		t.Error("unknown camera reported")
	}
}

func TestStatusStoreWithoutRedis(t *testing.T) {
	s := memoryStatus()
	ctx := context.Background()

	if s.Mirrored() {
		t.Error("disabled store should not mirror")
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	remote, err := s.Remote(ctx, "video1")
	if remote != nil || err != nil {
		t.Errorf("Remote = %v, %v", remote, err)
	}
	if s.HeartbeatInterval() != 30*time.Second {
		t.Errorf("heartbeat = %v", s.HeartbeatInterval())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStatusStorePingFailureDisablesMirror(t *testing.T) {
	s := NewStatusStore(&config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1", TTL: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err == nil {
		t.Skip("something is listening on 127.0.0.1:1")
	}
	if s.Mirrored() {
		t.Error("mirror should be disabled after a failed ping")
	}
	s.Update(ctx, model.CameraStatus{Name: "video1", State: model.CameraStreaming})
	if _, ok := s.Get("video1"); !ok {
		t.Error("status should still be tracked in memory")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mirroredStatus(t *testing.T, ttl time.Duration) (*StatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewStatusStore(&config.RedisConfig{Enabled: true, Addr: mr.Addr(), TTL: ttl, KeyPrefix: "ugcv:camera:"})
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStatusStoreMirrorsToRedis(t *testing.T) {
	s, mr := mirroredStatus(t, time.Minute)
	ctx := context.Background()

	if !s.Mirrored() {
		t.Fatal("store should mirror after a successful ping")
	}
	s.Update(ctx, model.CameraStatus{Name: "video1", DeviceIndex: 0, State: model.CameraStreaming, Published: 12})

	if ttl := mr.TTL("ugcv:camera:video1"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
	remote, err := s.Remote(ctx, "video1")
	if err != nil || remote == nil {
		t.Fatalf("Remote = %v, %v", remote, err)
	}
	if remote.State != model.CameraStreaming || remote.Published != 12 || remote.UpdatedAt == 0 {
		t.Errorf("remote = %+v", remote)
	}

	// 未命中返回 nil
	if remote, err := s.Remote(ctx, "video2"); remote != nil || err != nil {
		t.Errorf("missing camera = %v, %v", remote, err)
	}

	mr.FastForward(2 * time.Minute)
	if remote, err := s.Remote(ctx, "video1"); remote != nil || err != nil {
		t.Errorf("expired status = %v, %v", remote, err)
	}
	if _, ok := s.Get("video1"); !ok {
		t.Error("local status must survive the redis ttl")
	}
}

func TestStatusStoreRemoteCorrupt(t *testing.T) {
	s, mr := mirroredStatus(t, time.Minute)
	if err := mr.Set("ugcv:camera:video1", "not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Remote(context.Background(), "video1"); err == nil {
		t.Error("corrupt payload should fail to decode")
	}
}

func TestStatusStoreRedisDown(t *testing.T) {
	s, mr := mirroredStatus(t, time.Minute)
	mr.Close()

	// 写入失败只记录日志
	s.Update(context.Background(), model.CameraStatus{Name: "video1", State: model.CameraStreaming})
	if _, ok := s.Get("video1"); !ok {
		t.Error("status should still be tracked in memory")
	}
	if _, err := s.Remote(context.Background(), "video1"); err == nil {
		t.Error("Remote should report the connection error")
	}
}
