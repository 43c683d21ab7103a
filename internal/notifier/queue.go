package notifier

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// DefaultTTL 通知默认展示时长
const DefaultTTL = 5 * time.Second

type entry struct {
	toast types.Toast
	timer *time.Timer
}

// Queue 短时通知队列。每条通知入队时安排一个定时移除，用户可提前关闭；
// 两条路径都走同一个移除操作，保证只移除一次。
// Sink 事件按队列变更的顺序依次发出，Sink 内不能再调用 Push 或 Dismiss。
type Queue struct {
	ttl time.Duration

	// emit 覆盖变更和事件分发，保证 ToastRemoved 不会早于对应的 ToastPushed
	emit sync.Mutex

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	entries map[string]*entry
	order   []string
	sinks   []Sink
}

// NewQueue 创建通知队列，ttl<=0 时使用默认值
func NewQueue(ttl time.Duration, sinks ...Sink) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		ttl:     ttl,
		entropy: ulid.Monotonic(rand.Reader, 0),
		entries: make(map[string]*entry),
		sinks:   sinks,
	}
}

// AddSink 注册事件接收者
func (q *Queue) AddSink(sink Sink) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sinks = append(q.sinks, sink)
}

// Push 分配ID和创建时间后入队，并安排到期移除
func (q *Queue) Push(toast types.Toast) types.Toast {
	q.emit.Lock()
	defer q.emit.Unlock()

	q.mu.Lock()
	now := time.Now()
	toast.ID = ulid.MustNew(ulid.Timestamp(now), q.entropy).String()
	if toast.CreatedAt.IsZero() {
		toast.CreatedAt = now
	}

	id := toast.ID
	q.entries[id] = &entry{
		toast: toast,
		timer: time.AfterFunc(q.ttl, func() { q.remove(id, ReasonExpired) }),
	}
	q.order = append(q.order, id)
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.Unlock()

	for _, s := range sinks {
		s.ToastPushed(toast)
	}
	return toast
}

// Dismiss 提前关闭通知，ID不存在（已过期或已关闭）时什么也不做
func (q *Queue) Dismiss(id string) bool {
	return q.remove(id, ReasonDismissed)
}

// List 当前所有通知，按入队顺序
func (q *Queue) List() []types.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.Toast, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id].toast)
	}
	return out
}

// Len 当前通知数量
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Close 停止所有定时器并清空队列，不再产生事件
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = make(map[string]*entry)
	q.order = nil
}

func (q *Queue) remove(id string, reason RemoveReason) bool {
	q.emit.Lock()
	defer q.emit.Unlock()

	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	e.timer.Stop()
	delete(q.entries, id)
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	sinks := append([]Sink(nil), q.sinks...)
	q.mu.Unlock()

	zap.L().Debug("🧹 通知已移除", zap.String("id", id), zap.String("reason", string(reason)))
	for _, s := range sinks {
		s.ToastRemoved(e.toast, reason)
	}
	return true
}
