package worker

import (
	"sync"

	"github.com/xraph/jobgraph/job"
)

// deque is one worker's run queue. The owning worker pushes and pops at
// the back; other workers steal from the front, so a thief takes the
// oldest and usually largest piece of work.
type deque struct {
	mu    sync.Mutex
	items []*job.Job
}

func (d *deque) pushBack(j *job.Job) {
	d.mu.Lock()
	d.items = append(d.items, j)
	d.mu.Unlock()
}

func (d *deque) pushFront(j *job.Job) {
	d.mu.Lock()
	d.items = append([]*job.Job{j}, d.items...)
	d.mu.Unlock()
}

func (d *deque) popBack() *job.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil
	}
	j := d.items[n-1]
	d.items[n-1] = nil
	d.items = d.items[:n-1]
	return j
}

func (d *deque) popFront() *job.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil
	}
	j := d.items[0]
	d.items[0] = nil
	d.items = d.items[1:]
	return j
}

// remove deletes the job with the given ID and reports whether it was
// queued here.
func (d *deque) remove(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, j := range d.items {
		if j.ID.String() == jobID {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return true
		}
	}
	return false
}

func (d *deque) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
