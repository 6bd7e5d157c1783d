package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
)

var (
	// ErrClosed 发布者已关闭
	ErrClosed = errors.New("publisher closed")
	// ErrUnknownSubscriber 订阅者不存在
	ErrUnknownSubscriber = errors.New("unknown subscriber")
)

// Sequence 按需拉取的分片序列，结束时返回 model.ErrEndOfStream
type Sequence interface {
	Next(ctx context.Context) (*model.Chunk, error)
}

// Stats 发布统计
type Stats struct {
	Published   uint64
	Replaced    uint64
	Subscribers int
}

// Publisher 一个命名流端点
type Publisher struct {
	name string

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
	done   chan struct{}

	published atomic.Uint64
	replaced  atomic.Uint64
}

// Subscription 一个已连接客户端
type Subscription struct {
	id     string
	latest chan *model.Chunk
	done   chan struct{}
}

// NewPublisher 创建发布者
func NewPublisher(name string) *Publisher {
	return &Publisher{
		name: name,
		subs: make(map[string]*Subscription),
		done: make(chan struct{}),
	}
}

func (p *Publisher) Name() string {
	return p.name
}

// Subscribe 从当前时刻开始接收分片
func (p *Publisher) Subscribe(id string) (*Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:     id,
		latest: make(chan *model.Chunk, 1),
		done:   make(chan struct{}),
	}
	p.subs[id] = sub
	return sub, nil
}

// Unsubscribe 客户端断开
func (p *Publisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[id]; !ok {
		return ErrUnknownSubscriber
	}
	delete(p.subs, id)
	return nil
}

// Publish 将分片交给所有订阅者，未读的旧分片被替换
func (p *Publisher) Publish(c *model.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.published.Add(1)

	for _, sub := range p.subs {
		select {
		case sub.latest <- c:
			continue
		default:
		}
		// only Publish sends, so after a drain the slot is free
		select {
		case <-sub.latest:
			p.replaced.Add(1)
		default:
		}
		sub.latest <- c
	}
}

// Close 结束所有订阅，可重复调用
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		close(sub.done)
		delete(p.subs, id)
	}
	close(p.done)
}

// Done 发布者关闭时关闭
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	n := len(p.subs)
	p.mu.Unlock()

	return Stats{
		Published:   p.published.Load(),
		Replaced:    p.replaced.Load(),
		Subscribers: n,
	}
}

// Run 拉取序列直到结束、出错或 ctx 取消，然后关闭发布者。
// 正常结束和取消返回 nil。
func (p *Publisher) Run(ctx context.Context, seq Sequence) error {
	defer p.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}

		c, err := seq.Next(ctx)
		if err != nil {
			if errors.Is(err, model.ErrEndOfStream) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.Publish(c)
	}
}

func (s *Subscription) ID() string {
	return s.id
}

// Next 等待下一个分片；流结束或 ctx 取消时返回 false
func (s *Subscription) Next(ctx context.Context) (*model.Chunk, bool) {
	// a chunk published before close is still delivered
	select {
	case c := <-s.latest:
		return c, true
	default:
	}

	select {
	case c := <-s.latest:
		return c, true
	case <-s.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
