package domain

// Stats is a point-in-time derived view over the task store. It is computed
// from a single listing so the per-status counts always add up to TotalTasks.
type Stats struct {
	TotalTasks      int `json:"totalTasks"`
	PendingTasks    int `json:"pendingTasks"`
	ProcessingTasks int `json:"processingTasks"`
	CompletedTasks  int `json:"completedTasks"`
	FailedTasks     int `json:"failedTasks"`
	QueueDepth      int `json:"queueDepth"`
	Workers         int `json:"workers"`
}

// Add counts one task into the snapshot.
func (s *Stats) Add(status TaskStatus) {
	s.TotalTasks++
	switch status {
	case StatusPending:
		s.PendingTasks++
	case StatusProcessing:
		s.ProcessingTasks++
	case StatusCompleted:
		s.CompletedTasks++
	case StatusFailed:
		s.FailedTasks++
	}
}
