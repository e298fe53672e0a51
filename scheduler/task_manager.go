package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cartscout/models"
)

// CompareFunc runs one full comparison. Wired to the orchestrator in
// main.
type CompareFunc func(ctx context.Context, req *models.ComparisonRequest) (*models.ComparisonResponse, error)

// TaskManager runs comparisons asynchronously for clients that would
// rather poll than hold a request open for the full run
type TaskManager struct {
	tasks       map[string]*models.ComparisonTask
	taskQueue   chan *models.ComparisonTask
	workers     int
	maxWorkers  int
	compareFunc CompareFunc
	taskTimeout time.Duration
	mutex       sync.RWMutex
	stopChan    chan bool
}

// NewTaskManager creates a task manager and starts its dispatch loop
func NewTaskManager(compareFunc CompareFunc, maxWorkers int, taskTimeout time.Duration) *TaskManager {
	tm := &TaskManager{
		tasks:       make(map[string]*models.ComparisonTask),
		taskQueue:   make(chan *models.ComparisonTask, 100),
		workers:     0,
		maxWorkers:  maxWorkers,
		compareFunc: compareFunc,
		taskTimeout: taskTimeout,
		stopChan:    make(chan bool),
	}

	go tm.processTasks()
	log.Printf("🚀 Task manager started with %d max workers", maxWorkers)
	return tm
}

// SubmitTask queues a new comparison task and returns a snapshot of
// it. The owner is the API key that submitted it, recorded so per-plan
// task ceilings can be checked.
func (tm *TaskManager) SubmitTask(req models.ComparisonRequest, owner string) *models.ComparisonTask {
	task := models.NewComparisonTask(req)
	if owner != "" {
		task.Metadata["api_key"] = owner
	}

	tm.mutex.Lock()
	tm.tasks[task.ID] = task
	tm.mutex.Unlock()

	select {
	case tm.taskQueue <- task:
		log.Printf("📝 Task %s submitted for %s (%d products)", task.ID, req.Hostname, len(req.CartProducts))
	default:
		tm.withLock(func() { task.Fail("Task queue is full") })
		log.Printf("❌ Failed to submit task %s - queue full", task.ID)
	}

	return tm.snapshot(task)
}

// GetTask returns a copy of a task by ID. Workers keep mutating the
// live task, so callers always get a stable snapshot.
func (tm *TaskManager) GetTask(taskID string) (*models.ComparisonTask, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	task, exists := tm.tasks[taskID]
	if !exists {
		return nil, false
	}
	snap := *task
	return &snap, true
}

// GetActiveTasks returns copies of all tasks still pending or running
func (tm *TaskManager) GetActiveTasks() []*models.ComparisonTask {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	var activeTasks []*models.ComparisonTask
	for _, task := range tm.tasks {
		if task.IsActive() {
			snap := *task
			activeTasks = append(activeTasks, &snap)
		}
	}

	return activeTasks
}

// CleanupOldTasks removes completed tasks older than maxAge
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for taskID, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, taskID)
			log.Printf("🧹 Cleaned up old task: %s", taskID)
		}
	}
}

// processTasks dispatches queued tasks to workers
func (tm *TaskManager) processTasks() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case task := <-tm.taskQueue:
			if tm.claimWorker() {
				go tm.worker(task)
			} else {
				// Re-queue once capacity frees up
				go func() {
					time.Sleep(1 * time.Second)
					select {
					case tm.taskQueue <- task:
						log.Printf("🔄 Re-queued task %s (max workers reached)", task.ID)
					default:
						tm.withLock(func() { task.Fail("System overloaded, unable to process task") })
						log.Printf("❌ Failed to re-queue task %s", task.ID)
					}
				}()
			}

		case <-ticker.C:
			tm.CleanupOldTasks(1 * time.Hour)

		case <-tm.stopChan:
			log.Println("🛑 Task manager stopped")
			return
		}
	}
}

func (tm *TaskManager) claimWorker() bool {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	if tm.workers >= tm.maxWorkers {
		return false
	}
	tm.workers++
	return true
}

func (tm *TaskManager) releaseWorker() int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.workers--
	return tm.workers
}

// withLock runs a task mutation under the manager lock. Snapshot
// accessors and GetStats read task fields under the same lock, so
// every write after submission goes through here.
func (tm *TaskManager) withLock(fn func()) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	fn()
}

func (tm *TaskManager) snapshot(task *models.ComparisonTask) *models.ComparisonTask {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	snap := *task
	return &snap
}

// worker runs a single comparison task to completion
func (tm *TaskManager) worker(task *models.ComparisonTask) {
	defer func() {
		log.Printf("👷 Worker finished, active workers: %d", tm.releaseWorker())
	}()
	defer func() {
		if r := recover(); r != nil {
			tm.withLock(func() { task.Fail(fmt.Sprintf("comparison panicked: %v", r)) })
		}
	}()

	log.Printf("👷 Worker started on task %s for %s", task.ID, task.Request.Hostname)

	tm.withLock(func() {
		task.Start()
		task.UpdateProgress(10, "Discovering candidate sites...")
	})

	ctx, cancel := context.WithTimeout(context.Background(), tm.taskTimeout)
	defer cancel()

	result, err := tm.compareFunc(ctx, &task.Request)
	if err != nil {
		tm.withLock(func() { task.Fail("Comparison failed: " + err.Error()) })
		return
	}

	tm.withLock(func() { task.Complete(result) })
	log.Printf("✅ Task %s completed in %v", task.ID, task.Duration())
}

// Stop stops the task manager
func (tm *TaskManager) Stop() {
	close(tm.stopChan)
	log.Println("🛑 Task manager stopping...")
}

// GetStats returns task manager statistics
func (tm *TaskManager) GetStats() map[string]interface{} {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	stats := map[string]interface{}{
		"total_tasks":    len(tm.tasks),
		"active_workers": tm.workers,
		"max_workers":    tm.maxWorkers,
		"queue_size":     len(tm.taskQueue),
	}

	statusCounts := make(map[string]int)
	for _, task := range tm.tasks {
		statusCounts[string(task.Status)]++
	}
	stats["tasks_by_status"] = statusCounts

	return stats
}
