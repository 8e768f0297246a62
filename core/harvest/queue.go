package harvest

import (
	"container/heap"
	"time"

	"listing-harvester/core/record"
)

// scheduled is a task waiting for its ready time.
type scheduled struct {
	task
	readyAt time.Time
	seq     int
}

// schedule orders tasks by ready time, then by insertion.
type schedule []scheduled

func (s schedule) Len() int { return len(s) }

func (s schedule) Less(i, j int) bool {
	if s[i].readyAt.Equal(s[j].readyAt) {
		return s[i].seq < s[j].seq
	}
	return s[i].readyAt.Before(s[j].readyAt)
}

func (s schedule) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *schedule) Push(x any) { *s = append(*s, x.(scheduled)) }

func (s *schedule) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	*s = old[:n-1]
	return it
}

// retryQueue is the dispatcher's pending work. It is owned by one goroutine.
type retryQueue struct {
	items schedule
	seq   int
}

func (q *retryQueue) push(key record.EntityKey, attempt int, readyAt time.Time) {
	q.seq++
	heap.Push(&q.items, scheduled{task: task{key: key, attempt: attempt}, readyAt: readyAt, seq: q.seq})
}

func (q *retryQueue) len() int {
	return q.items.Len()
}

// next returns the earliest ready time. ok is false when empty.
func (q *retryQueue) next() (time.Time, bool) {
	if q.items.Len() == 0 {
		return time.Time{}, false
	}
	return q.items[0].readyAt, true
}

// popReady removes and returns the head if it is ready at now.
func (q *retryQueue) popReady(now time.Time) (task, bool) {
	if q.items.Len() == 0 || q.items[0].readyAt.After(now) {
		return task{}, false
	}
	return heap.Pop(&q.items).(scheduled).task, true
}
