package pipeline

// RunningMean is an O(1)-update, O(1)-read running mean, used by the
// load balancer to estimate each stage's per-item processing time
// without retaining a history buffer.
type RunningMean struct {
	mean  float64
	count int64
}

// Observe folds sample into the running mean.
func (r *RunningMean) Observe(sample float64) {
	r.count++
	r.mean += (sample - r.mean) / float64(r.count)
}

// Value returns the current mean, or 0 if no samples have been
// observed yet.
func (r *RunningMean) Value() float64 {
	return r.mean
}

// Count returns the number of samples folded in so far.
func (r *RunningMean) Count() int64 {
	return r.count
}
