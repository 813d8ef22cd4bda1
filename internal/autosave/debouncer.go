// Package autosave 合并短时间内的多次编辑，只在静默一段时间后执行一次保存。
package autosave

import (
	"sync"
	"time"
)

// Debouncer runs the latest function registered for a key once the key has been quiet for Delay.
// Every Trigger cancels and restarts the timer of its key.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

type entry struct {
	timer *time.Timer
	fn    func()
}

// New 返回一个延迟为 delay 的 Debouncer。
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, pending: make(map[string]*entry)}
}

// Trigger schedules fn for key, replacing any function still waiting for that key.
// It reports false once the debouncer is stopped.
func (d *Debouncer) Trigger(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
	}
	e := &entry{fn: fn}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, e) })
	d.pending[key] = e
	return true
}

func (d *Debouncer) fire(key string, e *entry) {
	d.mu.Lock()
	if d.pending[key] != e {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	e.fn()
}

// Cancel drops the pending function for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Flush runs the pending function for key right away, if there is one.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		e.fn()
	}
	return ok
}

// Pending 返回尚未执行的 key 数量。
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop flushes every pending function and rejects later triggers. Used on shutdown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	fns := make([]func(), 0, len(d.pending))
	for key, e := range d.pending {
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
