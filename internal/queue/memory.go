package queue

import (
	"context"
	"sync"
)

// Memory is an in-process queue pair for tests and dev mode.
type Memory struct {
	mu        sync.Mutex
	refreshes []RefreshTask
	deletions []DeletionTask
}

// NewMemory creates empty in-memory queues.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) EnqueueRefresh(ctx context.Context, task RefreshTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, task)
	return nil
}

func (m *Memory) EnqueueDeletion(ctx context.Context, task DeletionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletions = append(m.deletions, task)
	return nil
}

func (m *Memory) DequeueDeletion(ctx context.Context) (DeletionTask, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.deletions) == 0 {
		return DeletionTask{}, false, nil
	}
	task := m.deletions[0]
	m.deletions = m.deletions[1:]
	return task, true, nil
}

// Refreshes returns a snapshot of enqueued DNS refresh tasks, for tests.
func (m *Memory) Refreshes() []RefreshTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefreshTask(nil), m.refreshes...)
}

// Deletions returns a snapshot of pending deletion tasks, for tests.
func (m *Memory) Deletions() []DeletionTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeletionTask(nil), m.deletions...)
}
