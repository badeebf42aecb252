package session

import "sync/atomic"

// Task is a handle on background work. IsDone never blocks.
type Task struct {
	done     atomic.Bool
	finished chan struct{}
	err      error
}

func newTask() *Task {
	return &Task{finished: make(chan struct{})}
}

// IsDone reports whether the work has finished.
func (t *Task) IsDone() bool {
	return t.done.Load()
}

// Err returns the task error. Only meaningful once IsDone is true.
func (t *Task) Err() error {
	if !t.IsDone() {
		return nil
	}
	return t.err
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.finished
	return t.err
}

// Done returns a channel closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.finished
}

func (t *Task) finish(err error) {
	t.err = err
	t.done.Store(true)
	close(t.finished)
}
