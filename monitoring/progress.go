package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar counts the units of work of a named task that are running
// and finished.
type ProgressBar struct {
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64

	lock       sync.Mutex
	inProgress uint64
	finished   uint64
}

type progressBarRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress marks amount more units of work as running.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress += amount
}

// MoveInProgressToFinished marks amount running units of work as finished.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.inProgress -= amount
	b.finished += amount
}

// Counts returns the number of running and finished units of work.
func (b *ProgressBar) Counts() (inProgress, finished uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.inProgress, b.finished
}

func (b *ProgressBar) rsp() progressBarRsp {
	inProgress, finished := b.Counts()

	return progressBarRsp{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   finished,
		InProgress: inProgress,
	}
}
