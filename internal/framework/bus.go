package framework

import (
	"context"
	"sync"
	"time"

	"etcapply/pkg/logger"
)

// EventType 事件类型
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventFinished EventType = "finished"
)

// Event 总线上的事件
type Event struct {
	Seq     int64       `json:"seq"`
	Type    EventType   `json:"type"`
	Percent int         `json:"percent,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Time    time.Time   `json:"time"`
}

type subscription struct {
	id int
	fn func(Event)
}

// Bus 事件总线：生产方只入队，单个分发协程按入队顺序投递给订阅者
type Bus struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	history   []Event
	subs      []subscription
	nextSub   int
	seq       int64
	closed    bool
	done      chan struct{}
	logger    logger.Logger
	loggerCtx context.Context
}

// NewBus 创建总线并启动分发协程
func NewBus(ctx context.Context, log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	b := &Bus{
		done:      make(chan struct{}),
		logger:    log,
		loggerCtx: ctx,
	}
	b.cond = sync.NewCond(&b.mu)
	go b.dispatch()
	return b
}

// Log 日志事件
func (b *Bus) Log(msg string) {
	b.publish(Event{Type: EventLog, Message: msg})
}

// Progress 进度事件
func (b *Bus) Progress(percent int, msg string) {
	b.publish(Event{Type: EventProgress, Percent: percent, Message: msg})
}

// Finished 结束事件，result 为 nil 表示失败
func (b *Bus) Finished(result interface{}) {
	b.publish(Event{Type: EventFinished, Result: result})
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Warnf(b.loggerCtx, "[Bus] Dropped %s event after close: %s", ev.Type, ev.Message)
		return
	}
	b.seq++
	ev.Seq = b.seq
	ev.Time = time.Now()
	b.queue = append(b.queue, ev)
	b.cond.Signal()
}

// Subscribe 注册订阅者，返回已投递过的历史事件和取消函数
// 历史与后续投递不重不漏
func (b *Bus) Subscribe(fn func(Event)) ([]Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	id := b.nextSub
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	history := make([]Event, len(b.history))
	copy(history, b.history)

	return history, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// OnLog 订阅日志
func (b *Bus) OnLog(fn func(msg string)) func() {
	_, cancel := b.Subscribe(func(ev Event) {
		if ev.Type == EventLog {
			fn(ev.Message)
		}
	})
	return cancel
}

// OnProgress 订阅进度
func (b *Bus) OnProgress(fn func(percent int, msg string)) func() {
	_, cancel := b.Subscribe(func(ev Event) {
		if ev.Type == EventProgress {
			fn(ev.Percent, ev.Message)
		}
	})
	return cancel
}

// OnFinished 订阅结束事件
func (b *Bus) OnFinished(fn func(result interface{})) func() {
	_, cancel := b.Subscribe(func(ev Event) {
		if ev.Type == EventFinished {
			fn(ev.Result)
		}
	})
	return cancel
}

// History 已投递的事件
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Done 分发协程退出后关闭
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// Close 停止接收新事件，投递完队列里剩余的事件后返回
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}

		ev := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		b.history = append(b.history, ev)
		subs := make([]subscription, len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()

		for _, s := range subs {
			b.deliver(s, ev)
		}
	}
}

// deliver 订阅者 panic 不影响后续投递
func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf(b.loggerCtx, "[Bus] Subscriber %d panic on %s event: %v", s.id, ev.Type, r)
		}
	}()
	s.fn(ev)
}
