package analysis

import "math"

// ProgressPolicy tunes the asymptotic progress estimate for one analysis
// mode. A mode expected to issue many tool calls uses a larger buffer and a
// higher cap so the displayed percentage neither overshoots early nor
// stalls near zero.
type ProgressPolicy struct {
	// Buffer dampens early growth: the first call lands at roughly
	// cap/(1+buffer) percent.
	Buffer int
	// Cap is the ceiling the estimate approaches but never reaches before
	// the terminal event.
	Cap int
}

// Percent converts the count of tool calls executed so far into a bounded
// percentage: round(cap * n / (n + buffer)). The curve rises quickly at
// first and flattens approaching Cap, because the true number of remaining
// tool calls is unknown in advance.
func Percent(n int, p ProgressPolicy) int {
	if n <= 0 {
		return 0
	}
	buffer := p.Buffer
	if buffer <= 0 {
		buffer = 1
	}
	return int(math.Round(float64(p.Cap) * float64(n) / float64(n+buffer)))
}

// ProgressFunc receives one progress event. The loop controller does not
// know whether it is wired to a network stream, a test double, or a log
// sink. A nil ProgressFunc discards events.
type ProgressFunc func(step, total int, label string)

func (f ProgressFunc) emit(step int, label string) {
	if f != nil {
		f(step, 100, label)
	}
}
