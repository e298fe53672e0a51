package models

import (
	"strings"
	"testing"
)

func TestNewComparisonTask(t *testing.T) {
	req := ComparisonRequest{
		Hostname:     "shop.example.com",
		CartProducts: []CartProduct{{ProductName: "Widget", Price: 10, Quantity: 1}},
	}

	task := NewComparisonTask(req)

	if !strings.HasPrefix(task.ID, "task_") {
		t.Errorf("ID = %q, want task_ prefix", task.ID)
	}
	if task.Status != TaskStatusQueued {
		t.Errorf("Status = %q, want queued", task.Status)
	}
	if task.Metadata == nil {
		t.Error("Metadata not initialized")
	}

	other := NewComparisonTask(req)
	if task.ID == other.ID {
		t.Errorf("two tasks share ID %q", task.ID)
	}
}

func TestComparisonTask_Lifecycle(t *testing.T) {
	task := NewComparisonTask(ComparisonRequest{})

	if !task.IsActive() || task.IsCompleted() {
		t.Error("queued task should be active and not completed")
	}
	if task.Duration() != 0 {
		t.Errorf("Duration() = %v before start, want 0", task.Duration())
	}

	task.Start()
	if task.Status != TaskStatusProcessing || !task.IsActive() {
		t.Errorf("Status after Start = %q, want processing", task.Status)
	}
	if task.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}

	task.Complete(&ComparisonResponse{})
	if task.Status != TaskStatusCompleted || task.IsActive() || !task.IsCompleted() {
		t.Errorf("Status after Complete = %q, want completed", task.Status)
	}
	if task.Progress != 100 {
		t.Errorf("Progress = %d after Complete, want 100", task.Progress)
	}
	if task.Duration() < 0 {
		t.Errorf("Duration() = %v, want non-negative", task.Duration())
	}
}

func TestComparisonTask_Fail(t *testing.T) {
	task := NewComparisonTask(ComparisonRequest{})
	task.Start()
	task.Fail("site unreachable")

	if task.Status != TaskStatusFailed || !task.IsCompleted() {
		t.Errorf("Status = %q after Fail, want failed", task.Status)
	}
	if task.Error != "site unreachable" {
		t.Errorf("Error = %q", task.Error)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt not set on failure")
	}
}
