package approval

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DirectoryLookup 组织数据查询接口，由外部协作方（员工目录）提供
type DirectoryLookup interface {
	// DirectManager 返回直属上级 ID，无上级时返回空串
	DirectManager(ctx context.Context, userID string) (string, error)
}

// DefinitionCache 当前工作流定义缓存，可选注入
type DefinitionCache interface {
	GetDefinition(ctx context.Context, pageID string) (*WorkflowDefinition, bool)
	SetDefinition(ctx context.Context, pageID string, def *WorkflowDefinition)
	InvalidateDefinition(ctx context.Context, pageID string)
}

// Manager 审批引擎
// 聚合定义存储、请求实例化、审批人解析、投票推进与超时调度。
type Manager struct {
	db        *gorm.DB
	directory DirectoryLookup
	cache     DefinitionCache
	eventBus  *EventBus
	logger    *zap.Logger

	// 单请求互斥边界，配合 lock_version 的 CAS 保证推进至多一次
	locks sync.Map // requestID -> *sync.Mutex
}

// ManagerOption 自定义配置
type ManagerOption func(*Manager)

// WithDirectory 注入组织数据查询
func WithDirectory(d DirectoryLookup) ManagerOption {
	return func(m *Manager) { m.directory = d }
}

// WithDefinitionCache 注入定义缓存
func WithDefinitionCache(c DefinitionCache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// WithEventBus 注入事件总线
func WithEventBus(bus *EventBus) ManagerOption {
	return func(m *Manager) { m.eventBus = bus }
}

// WithManagerLogger 注入自定义日志器
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager 创建审批引擎
func NewManager(db *gorm.DB, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		db:     db,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr
}

// Subscribe 订阅指定请求的事件
func (m *Manager) Subscribe(requestID string) (<-chan Event, func()) {
	if m.eventBus == nil {
		return nil, nil
	}
	return m.eventBus.Subscribe(requestID)
}

// SubscribeAll 订阅全量事件流
func (m *Manager) SubscribeAll() (<-chan Event, func()) {
	if m.eventBus == nil {
		return nil, nil
	}
	return m.eventBus.SubscribeAll()
}

func (m *Manager) publishEvent(evt Event) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(evt)
}

// withRequestLock 在单请求互斥边界内执行 fn
// 同一请求上的并发投票、取消与调度注入串行化，跨请求完全独立。
func (m *Manager) withRequestLock(requestID string, fn func() error) error {
	v, _ := m.locks.LoadOrStore(requestID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
