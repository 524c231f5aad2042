/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package workerpool implements the fixed-size task queue that hands
// accepted connections and client flows to a bounded set of long-lived
// goroutines, with a bounded wait primitive letting a coordinator block
// until N tasks have completed.
package workerpool

import (
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

// Task is a unit of work submitted to the pool.
type Task struct {
	ID uint64
	Fn func(id uint64)
}

// Pool is a fixed-size set of workers draining a shared queue under a
// single mutex and two condition variables: one signaled when a task is
// queued, the other when the completed count reaches a pending waiter's
// target. Workers take the most recently queued task first (LIFO).
type Pool struct {
	mu     sync.Mutex
	taskCV *sync.Cond
	waitCV *sync.Cond

	size     int
	queue    []Task
	shutdown bool

	starting   int
	running    int
	busy       int
	completed  int
	waitTarget int
	waiting    bool

	current  map[int]uint64 // worker index -> task id currently executing
	log      hclog.Logger
	affinity uint64 // advisory CPU affinity mask, 0 = unset

	wg sync.WaitGroup
}

// SetAffinity records an advisory CPU affinity mask to apply to every
// worker's OS thread at Start. A zero mask leaves workers unpinned. It has
// no effect once Start has already launched the workers.
func (p *Pool) SetAffinity(mask uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.affinity = mask
}

// New allocates pool state for size workers but does not start them; call
// Start to launch the workers.
func New(size int, log hclog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	p := &Pool{
		size:    size,
		current: make(map[int]uint64, size),
		log:     log,
	}
	p.taskCV = sync.NewCond(&p.mu)
	p.waitCV = sync.NewCond(&p.mu)
	return p
}

// Start launches every worker. It blocks (short-sleeping) until all workers
// have crossed their startup barrier, so a caller can call Execute
// immediately after Start returns without racing worker initialization.
func (p *Pool) Start() {
	p.mu.Lock()
	p.shutdown = false
	p.starting = p.size
	p.running = p.size
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}

	for {
		p.mu.Lock()
		s := p.starting
		p.mu.Unlock()
		if s == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Stop requests shutdown: it sets the shutdown flag, wakes every worker
// blocked on the task condition variable, joins all workers, then wakes any
// coordinator blocked in WaitForCompletion.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.shutdown = true
	p.taskCV.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.waitCV.Broadcast()
	p.mu.Unlock()
}

// Execute enqueues a task and wakes exactly one worker. It does not bound
// the queue; pacing is the caller's responsibility.
func (p *Pool) Execute(id uint64, fn func(id uint64)) {
	p.mu.Lock()
	p.queue = append(p.queue, Task{ID: id, Fn: fn})
	p.taskCV.Signal()
	p.mu.Unlock()
}

// WaitForCompletion blocks until at least n tasks have completed since the
// pool was started, or the pool is stopped. Only one waiter is allowed at a
// time; a concurrent call returns false immediately.
func (p *Pool) WaitForCompletion(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.waiting {
		return false
	}

	p.waiting = true
	p.waitTarget = n
	defer func() {
		p.waiting = false
		p.waitTarget = 0
	}()

	for p.completed < n && !p.shutdown && p.waitTarget == n {
		p.waitCV.Wait()
	}

	return p.completed >= n
}

// Wake releases any coordinator blocked in WaitForCompletion without
// requiring the completed count to reach its target, used when a shutdown
// signal should abort a pending wait.
func (p *Pool) Wake() {
	p.mu.Lock()
	p.waitTarget = 0
	p.waitCV.Broadcast()
	p.mu.Unlock()
}

// Running reports whether the pool currently has any active worker.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running > 0
}

// BusyCount reports how many workers are currently executing a task.
func (p *Pool) BusyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// QueuedCount reports how many tasks are waiting to be picked up.
func (p *Pool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// ThreadCount reports the configured pool size.
func (p *Pool) ThreadCount() int {
	return p.size
}

// CompletedCount reports the cumulative number of completed tasks.
func (p *Pool) CompletedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

func (p *Pool) workerLoop(idx int) {
	defer p.wg.Done()

	p.mu.Lock()
	mask := p.affinity
	p.starting--
	p.mu.Unlock()

	if mask != 0 {
		applyAffinity(idx, mask, p.log)
	}

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.taskCV.Wait()
		}

		if p.shutdown && len(p.queue) == 0 {
			p.running--
			p.mu.Unlock()
			return
		}

		task := p.queue[len(p.queue)-1]
		p.queue = p.queue[:len(p.queue)-1]
		p.current[idx] = task.ID
		p.busy++
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("task panicked", "task_id", task.ID, "recover", r)
				}
			}()
			if task.Fn != nil {
				task.Fn(task.ID)
			}
		}()

		p.mu.Lock()
		p.busy--
		p.completed++
		if p.waitTarget > 0 && p.completed >= p.waitTarget {
			p.waitCV.Broadcast()
		}
		p.mu.Unlock()
	}
}

// IDOfWorker returns the task id most recently dequeued by worker idx, and
// whether that worker exists and has dequeued at least one task.
func (p *Pool) IDOfWorker(idx int) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.current[idx]
	return id, ok
}

// applyAffinity pins the calling goroutine's OS thread to the CPUs set in
// mask. It locks the OS thread for the worker's lifetime, since an
// affinity applied to a thread the goroutine later hops off of is
// meaningless. Failure is logged and otherwise ignored: affinity is
// advisory, never a precondition for correct execution.
func applyAffinity(idx int, mask uint64, log hclog.Logger) {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	for cpu := 0; cpu < 64; cpu++ {
		if mask&(1<<uint(cpu)) != 0 {
			set.Set(cpu)
		}
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Warn("worker affinity not applied", "worker", idx, "mask", mask, "error", err)
	}
}
