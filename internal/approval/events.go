package approval

import (
	"sync"
	"time"
)

// Event 描述审批请求的状态变化
// 终态迁移和步骤前进都会发布，下游（通知投递、业务回写）据此消费。
type Event struct {
	RequestID  string        `json:"requestId"`
	RequestNo  string        `json:"requestNo"`
	PageID     string        `json:"pageId"`
	EntityID   string        `json:"entityId"`
	Status     RequestStatus `json:"status"`
	StepOrder  int           `json:"stepOrder"`
	StepName   string        `json:"stepName"`
	ActorID    string        `json:"actorId"`
	Comment    string        `json:"comment"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// EventBusConfig 控制事件总线行为
type EventBusConfig struct {
	BufferSize int
}

// EventBus 简单本地事件总线
// 按请求 ID 订阅单个请求，或通过 SubscribeAll 订阅全量事件流。
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Event
	all    map[uint64]chan Event
	seq    uint64
	buffer int
}

// NewEventBus 创建事件总线
func NewEventBus(cfg *EventBusConfig) *EventBus {
	buffer := 8
	if cfg != nil && cfg.BufferSize > 0 {
		buffer = cfg.BufferSize
	}
	return &EventBus{
		subs:   make(map[string]map[uint64]chan Event),
		all:    make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Publish 发布事件，接收方处理慢则丢弃，保持非阻塞
func (b *EventBus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	listeners := make([]chan Event, 0, len(b.subs[evt.RequestID])+len(b.all))
	for _, ch := range b.subs[evt.RequestID] {
		listeners = append(listeners, ch)
	}
	for _, ch := range b.all {
		listeners = append(listeners, ch)
	}
	b.mu.RUnlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe 订阅指定请求的事件
func (b *EventBus) Subscribe(requestID string) (<-chan Event, func()) {
	if b == nil {
		return nil, nil
	}
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[requestID]; !ok {
		b.subs[requestID] = make(map[uint64]chan Event)
	}
	b.subs[requestID][id] = ch
	b.mu.Unlock()

	cancel := func() { b.removeListener(requestID, id) }
	return ch, cancel
}

// SubscribeAll 订阅全量事件流
func (b *EventBus) SubscribeAll() (<-chan Event, func()) {
	if b == nil {
		return nil, nil
	}
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.all[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.all[id]; ok {
			delete(b.all, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (b *EventBus) removeListener(requestID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if listeners, ok := b.subs[requestID]; ok {
		if ch, exists := listeners[id]; exists {
			delete(listeners, id)
			close(ch)
		}
		if len(listeners) == 0 {
			delete(b.subs, requestID)
		}
	}
}
