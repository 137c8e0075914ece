package logging

// PoseSampler thins enroll progress logging. It reports the first capture,
// every step-th capture, and the capture that completes the set.
type PoseSampler struct {
	total    int
	step     int
	captured int
}

// NewPoseSampler returns a sampler for total poses. A step below one logs
// the first and last capture only.
func NewPoseSampler(total, step int) *PoseSampler {
	if step < 1 {
		step = total
	}
	return &PoseSampler{total: total, step: max(step, 1)}
}

// Capture records one pose and reports whether it should be logged.
func (s *PoseSampler) Capture() bool {
	if s == nil {
		return true
	}
	s.captured++
	return s.captured == 1 || s.captured%s.step == 0 || s.captured == s.total
}

// Captured returns the number of poses seen since the last Reset.
func (s *PoseSampler) Captured() int {
	if s == nil {
		return 0
	}
	return s.captured
}

// Reset starts a new enrollment.
func (s *PoseSampler) Reset() {
	if s == nil {
		return
	}
	s.captured = 0
}
