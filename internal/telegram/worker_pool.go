package telegram

import (
	"context"
	"sync"

	"tg_forwarder/internal/logger"
)

// EventTask 事件处理任务
type EventTask struct {
	Ctx context.Context
	Run func(ctx context.Context)
}

// WorkerPool 事件处理工作池
// 源端事件按到达顺序入队，多个 worker 并发消费；
// 队列满时丢弃并告警，避免慢消费拖垮事件摄取
type WorkerPool struct {
	taskQueue chan EventTask
	wg        sync.WaitGroup
	workers   int
}

// NewWorkerPool 创建工作池
// workers: worker 协程数量
// queueSize: 任务队列大小
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	pool := &WorkerPool{
		taskQueue: make(chan EventTask, queueSize),
		workers:   workers,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return pool
}

// worker 工作协程
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger.L().Debugf("Worker %d started", id)

	for task := range p.taskQueue {
		// 执行任务，带 panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.L().Errorf("Worker %d: event handler panic recovered: %v", id, r)
				}
			}()
			task.Run(task.Ctx)
		}()
	}

	logger.L().Debugf("Worker %d stopped", id)
}

// Submit 提交任务到工作池
func (p *WorkerPool) Submit(task EventTask) {
	select {
	case p.taskQueue <- task:
	default:
		logger.L().Warnf("Worker pool queue is full, event dropped")
	}
}

// Shutdown 优雅关闭工作池，等待在途任务完成
func (p *WorkerPool) Shutdown() {
	logger.L().Info("Shutting down worker pool...")

	close(p.taskQueue)
	p.wg.Wait()

	logger.L().Info("Worker pool shut down successfully")
}
