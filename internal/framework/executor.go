package framework

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"etcapply/pkg/logger"
)

// ErrExecutorClosed 执行器已关闭
var ErrExecutorClosed = errors.New("executor is closed")

// Task 后台任务，返回值作为 finished 事件的结果
type Task func(ctx context.Context) (interface{}, error)

// Reported 已经通过总线上报过的错误，执行器不再重复记日志
type Reported interface {
	Reported() bool
}

// TaskInfo 运行中的任务
type TaskInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// Executor 后台执行器：每个任务一个协程，只记录仍在运行的任务
type Executor struct {
	mu      sync.Mutex
	running map[string]TaskInfo
	wg      sync.WaitGroup
	closing *atomic.Bool
	seq     *atomic.Int64
	logger  logger.Logger
}

// NewExecutor 创建执行器
func NewExecutor(log logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{
		running: make(map[string]TaskInfo),
		closing: atomic.NewBool(false),
		seq:     atomic.NewInt64(0),
		logger:  log,
	}
}

// Submit 提交任务，日志、结束事件都走 bus
// 任务不随调用方 ctx 取消（HTTP / SQL 调用不支持中途取消），只继承其中的日志字段
func (e *Executor) Submit(ctx context.Context, name string, bus *Bus, task Task) (string, error) {
	info := TaskInfo{
		ID:        fmt.Sprintf("%s-%d", name, e.seq.Inc()),
		Name:      name,
		StartedAt: time.Now(),
	}

	// closing 与 wg.Add 在同一把锁内，Shutdown 之后不会再有新任务加入
	e.mu.Lock()
	if e.closing.Load() {
		e.mu.Unlock()
		return "", ErrExecutorClosed
	}
	e.running[info.ID] = info
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(context.WithoutCancel(ctx), info, bus, task)

	e.logger.Infof(ctx, "[Executor] Task submitted: %s", info.ID)
	return info.ID, nil
}

func (e *Executor) run(ctx context.Context, info TaskInfo, bus *Bus, task Task) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.running, info.ID)
		e.mu.Unlock()
	}()

	// 任务 panic 时转成日志 + finished(nil)
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			e.logger.Errorf(ctx, "[Executor] Task %s panic: %v\n%s", info.ID, r, stack)
			bus.Log(fmt.Sprintf("panic: %v\n%s", r, stack))
			bus.Finished(nil)
		}
	}()

	result, err := task(ctx)
	if err != nil {
		var reported Reported
		if !errors.As(err, &reported) || !reported.Reported() {
			bus.Log(err.Error())
		}
		e.logger.Warnf(ctx, "[Executor] Task %s failed: %v, duration: %v", info.ID, err, time.Since(info.StartedAt))
		bus.Finished(nil)
		return
	}

	e.logger.Infof(ctx, "[Executor] Task %s done, duration: %v", info.ID, time.Since(info.StartedAt))
	bus.Finished(result)
}

// Running 仍在运行的任务，按启动时间排序
func (e *Executor) Running() []TaskInfo {
	e.mu.Lock()
	out := make([]TaskInfo, 0, len(e.running))
	for _, info := range e.running {
		out = append(out, info)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Wait 等待所有任务结束
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Shutdown 拒绝新任务并等待运行中的任务结束
func (e *Executor) Shutdown() {
	e.mu.Lock()
	first := e.closing.CAS(false, true)
	e.mu.Unlock()

	if first {
		e.logger.Infof(context.Background(), "[Executor] Shutting down, running tasks: %d", len(e.Running()))
		e.wg.Wait()
		e.logger.Infof(context.Background(), "[Executor] Shutdown complete")
	}
}
