package pipeline

// LoadBalancer computes, on each push, which stage a payload should
// enter and what compression level each stage should currently run
// at, from the two stages' estimated remaining work (queue_depth ×
// running_mean(processing_time)).
type LoadBalancer struct {
	stageAMean RunningMean
	stageBMean RunningMean
}

// StageDecision is the routing + level decision for one payload push.
type StageDecision struct {
	EnterStageB    bool
	StageALevel    int
	StageBLevel    int
	P              float64
}

// ObserveStageA folds a Stage-A processing-time sample (seconds) into
// the running mean.
func (lb *LoadBalancer) ObserveStageA(seconds float64) { lb.stageAMean.Observe(seconds) }

// ObserveStageB folds a Stage-B processing-time sample (seconds) into
// the running mean.
func (lb *LoadBalancer) ObserveStageB(seconds float64) { lb.stageBMean.Observe(seconds) }

// Decide computes the routing decision given the current queue depths
// of both stages, per spec §4.8's bracket table.
func (lb *LoadBalancer) Decide(stageADepth, stageBDepth int) StageDecision {
	stageATime := float64(stageADepth) * lb.stageAMean.Value()
	stageBTime := float64(stageBDepth) * lb.stageBMean.Value()

	var p float64
	if total := stageATime + stageBTime; total > 0 {
		p = stageATime / total
	} else {
		p = 0
	}

	var aLevel, bLevel int
	switch {
	case p < 0.25:
		aLevel, bLevel = 6, 1
	case p < 0.50:
		aLevel, bLevel = 3, 1
	case p < 0.75:
		aLevel, bLevel = 1, 3
	default:
		aLevel, bLevel = 1, 6
	}

	return StageDecision{
		EnterStageB: p >= 0.50,
		StageALevel: aLevel,
		StageBLevel: bLevel,
		P:           p,
	}
}
