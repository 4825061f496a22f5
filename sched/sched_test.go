package sched

import (
	"testing"

	"pebblekernel/task"
)

type fakeSwitcher struct {
	switches []string
}

func (f *fakeSwitcher) SaveAndSwitch(prev, next *task.Task) {
	f.switches = append(f.switches, "switch:"+next.Name)
}

func (f *fakeSwitcher) JumpToNew(next *task.Task) {
	f.switches = append(f.switches, "jump:"+next.Name)
}

func mkTask(name string) *task.Task {
	return &task.Task{ID: task.NewID(), Name: name, State: task.StateNew}
}

func TestScheduleIdleWhenEmpty(t *testing.T) {
	sw := &fakeSwitcher{}
	s := New(sw)
	if s.Schedule() {
		t.Fatalf("expected Schedule to report idle on empty queues")
	}
}

func TestNewQueueTakesPriorityOverReady(t *testing.T) {
	sw := &fakeSwitcher{}
	s := New(sw)

	ready := mkTask("ready-task")
	ready.State = task.StateReady
	s.readyQueue = append(s.readyQueue, ready)

	fresh := mkTask("new-task")
	if err := s.Spawn(fresh); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if !s.Schedule() {
		t.Fatalf("expected a task to be scheduled")
	}
	if s.Running().Name != "new-task" {
		t.Fatalf("expected new_queue task to run first, got %s", s.Running().Name)
	}
}

func TestTimerTickRequeuesRunningTask(t *testing.T) {
	sw := &fakeSwitcher{}
	s := New(sw)
	a, b := mkTask("a"), mkTask("b")
	a.State = task.StateReady
	b.State = task.StateReady
	s.readyQueue = append(s.readyQueue, a, b)

	s.Schedule() // a runs
	if s.Running().Name != "a" {
		t.Fatalf("expected a running, got %s", s.Running().Name)
	}

	s.Tick() // a -> ready (back of queue), b runs
	if s.Running().Name != "b" {
		t.Fatalf("expected b running after tick, got %s", s.Running().Name)
	}
	_, readyLen := s.Counts()
	if readyLen != 1 {
		t.Fatalf("expected 1 task requeued, got %d", readyLen)
	}

	s.Tick() // b -> ready, a runs again: fairness round-trips
	if s.Running().Name != "a" {
		t.Fatalf("expected round-robin back to a, got %s", s.Running().Name)
	}
}

func TestExitDropsFinishedTask(t *testing.T) {
	sw := &fakeSwitcher{}
	s := New(sw)
	a, b := mkTask("a"), mkTask("b")
	a.State = task.StateReady
	b.State = task.StateReady
	s.readyQueue = append(s.readyQueue, a, b)
	s.Schedule() // a runs

	s.Exit(a) // a finishes, b scheduled next
	if a.State != task.StateFinished {
		t.Fatalf("expected a Finished, got %v", a.State)
	}
	if s.Running().Name != "b" {
		t.Fatalf("expected b running after a's exit, got %s", s.Running().Name)
	}
	newLen, readyLen := s.Counts()
	if newLen != 0 || readyLen != 0 {
		t.Fatalf("expected empty queues (a dropped, b running), got new=%d ready=%d", newLen, readyLen)
	}
}

func TestSpawnRejectsOverCapacity(t *testing.T) {
	sw := &fakeSwitcher{}
	s := New(sw)
	for i := 0; i < NewQueueCapacity; i++ {
		if err := s.Spawn(mkTask("t")); err != nil {
			t.Fatalf("unexpected error at %d: %v", i, err)
		}
	}
	if err := s.Spawn(mkTask("overflow")); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
