package task

import "sync"

// Task 异步任务句柄，所有者负责 Wait，避免后台工作在资源释放后继续运行
type Task struct {
	done chan struct{}
	err  error
}

// Go 在新 goroutine 中运行 fn
func Go(fn func() error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn()
	}()
	return t
}

// Done 任务结束时关闭
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Finished 非阻塞检查
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait 阻塞直到任务结束并返回其错误
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Group 一组任务，Wait 全部结束
type Group struct {
	mu    sync.Mutex
	tasks []*Task
}

// Go 启动并登记一个任务
func (g *Group) Go(fn func() error) *Task {
	t := Go(fn)
	g.Add(t)
	return t
}

// Add 登记一个已经启动的任务
func (g *Group) Add(t *Task) {
	g.mu.Lock()
	g.tasks = append(g.tasks, t)
	g.mu.Unlock()
}

// Wait 等待已登记的全部任务，返回第一个错误
func (g *Group) Wait() error {
	g.mu.Lock()
	tasks := g.tasks
	g.tasks = nil
	g.mu.Unlock()

	var first error
	for _, t := range tasks {
		if err := t.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
