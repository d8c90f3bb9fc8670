package apply

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"etcapply/internal/framework"
)

const eventBuffer = 64

// eventPipe 总线到 SSE 连接的缓冲
// push 在总线分发协程里调用，不能阻塞；缓冲满时标记溢出，由连接结束流
type eventPipe struct {
	ch       chan framework.Event
	overflow chan struct{}
	once     sync.Once
}

func newEventPipe(size int) *eventPipe {
	return &eventPipe{
		ch:       make(chan framework.Event, size),
		overflow: make(chan struct{}),
	}
}

func (p *eventPipe) push(ev framework.Event) {
	select {
	case p.ch <- ev:
	default:
		p.once.Do(func() { close(p.overflow) })
	}
}

// Events 事件流（SSE）：先补发历史事件，再推送后续事件
// 已提交的后台段都结束且没有待执行的段时关闭流
// 客户端跟不上（缓冲溢出）时发送 overflow 事件后关闭，重连即可拿到完整历史
// GET /api/v1/applications/:id/events
func (h *ApplyHandler) Events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	pipe := newEventPipe(eventBuffer)
	history, cancel := s.Subscribe(pipe.push)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	write := func(ev framework.Event) {
		c.SSEvent(string(ev.Type), ev)
		c.Writer.Flush()
	}

	finished := 0
	settled := func() bool {
		return finished >= s.Submitted() && !s.View().Running
	}
	for _, ev := range history {
		write(ev)
		if ev.Type == framework.EventFinished {
			finished++
		}
	}
	if finished > 0 && settled() {
		return
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-pipe.overflow:
			c.SSEvent("overflow", gin.H{"dropped": true})
			c.Writer.Flush()
			return
		case ev := <-pipe.ch:
			write(ev)
			if ev.Type == framework.EventFinished {
				finished++
				if settled() {
					return
				}
			}
		case <-heartbeat.C:
			_, _ = c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
