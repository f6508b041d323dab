package logger

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// ratioSampler lets through num out of every den events. A zero ratio lets
// everything through.
type ratioSampler struct {
	ratio   atomic.Uint64 // num<<32 | den
	counter atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	num = min(num, den)
	s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.counter.Store(0)
}

func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if den == 0 {
		return true
	}
	n := (s.counter.Add(1) - 1) % den
	return n < num
}

// parseRatio reads "N/M" or "M" (meaning 1/M). Anything else yields 0/0.
func parseRatio(raw string) (int, int) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	var num, den int
	if strings.Contains(raw, "/") {
		if _, err := fmt.Sscanf(raw, "%d/%d", &num, &den); err == nil {
			return num, den
		}
		return 0, 0
	}
	if _, err := fmt.Sscanf(raw, "%d", &den); err == nil && den > 0 {
		return 1, den
	}
	return 0, 0
}
