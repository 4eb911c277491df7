// Package queue defines the task queues the flow engine feeds: DNS refresh
// tasks consumed by the DNS-writing collaborator and async deletion tasks
// consumed by the internal worker. Delivery is at-least-once and
// fire-and-forget from the flow's point of view; tasks are enqueued only
// after a successful commit, never before.
package queue

import (
	"context"
	"time"
)

// RefreshKind distinguishes what a DNS refresh targets.
type RefreshKind string

const (
	RefreshHost   RefreshKind = "host"
	RefreshDomain RefreshKind = "domain"
)

// RefreshTask asks the DNS writer to republish one hostname's glue or one
// domain's delegation.
type RefreshTask struct {
	Kind RefreshKind `json:"kind"`
	Name string      `json:"name"`
	TLD  string      `json:"tld"`
}

// DeletionTask asks the async worker to verify referential safety and then
// really delete a resource that a flow optimistically marked pendingDelete.
type DeletionTask struct {
	ResourceKind        string    `json:"resource_kind"`
	ResourceRepoID      string    `json:"resource_repo_id"`
	RequestingRegistrar string    `json:"requesting_registrar"`
	ClientTrid          string    `json:"client_trid,omitempty"`
	ServerTrid          string    `json:"server_trid,omitempty"`
	Superuser           bool      `json:"superuser,omitempty"`
	RequestTime         time.Time `json:"request_time"`
	NotBefore           time.Time `json:"not_before,omitzero"`
}

// DNS is the refresh-task sink.
type DNS interface {
	EnqueueRefresh(ctx context.Context, task RefreshTask) error
}

// Async is the deletion-task queue: flows enqueue, the worker dequeues.
type Async interface {
	EnqueueDeletion(ctx context.Context, task DeletionTask) error
	// DequeueDeletion pops one ready task, or returns false when the queue
	// is empty.
	DequeueDeletion(ctx context.Context) (DeletionTask, bool, error)
}
