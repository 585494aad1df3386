package metrics

import (
	"time"
)

// QueueCollector feeds job-queue lifecycle callbacks into the worker metrics.
type QueueCollector struct{}

func NewQueueCollector() *QueueCollector {
	return &QueueCollector{}
}

func (c *QueueCollector) JobStarted(jobType, queue string) {
	WorkerPoolActiveJobs.Inc()
}

func (c *QueueCollector) JobCompleted(jobType, queue string, duration time.Duration) {
	c.finish(jobType, "success", duration)
}

// JobFailed fires only once the queue has given up on the job.
func (c *QueueCollector) JobFailed(jobType, queue string, duration time.Duration) {
	c.finish(jobType, "error", duration)
}

func (c *QueueCollector) JobRetrying(jobType, queue string, attempt int) {
	JobsProcessedTotal.WithLabelValues(jobType, "retry").Inc()
}

func (c *QueueCollector) finish(jobType, status string, d time.Duration) {
	WorkerPoolActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
	JobsProcessingDuration.WithLabelValues(jobType, "total").Observe(d.Seconds())
}
