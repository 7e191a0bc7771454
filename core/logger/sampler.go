package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampleRate is "keep n of every d"; the zero value keeps everything.
type sampleRate struct {
	n, d uint32
}

// parseSampleRate accepts "n/d" or "d" (1/d). "0" and "off" disable sampling.
func parseSampleRate(spec string) (sampleRate, bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return sampleRate{}, false
	case "0", "off", "none":
		return sampleRate{}, true
	}
	num, den, hasNum := strings.Cut(spec, "/")
	if !hasNum {
		num, den = "1", spec
	}
	n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 32)
	if err != nil {
		return sampleRate{}, false
	}
	d, err := strconv.ParseUint(strings.TrimSpace(den), 10, 32)
	if err != nil || d == 0 || n == 0 {
		return sampleRate{}, false
	}
	return sampleRate{n: uint32(min(n, d)), d: uint32(d)}, true
}

// sampler thins out high-volume debug lines without locking.
type sampler struct {
	rate atomic.Uint64
	seq  atomic.Uint64
}

func newSampler(r sampleRate) *sampler {
	s := &sampler{}
	s.set(r)
	return s
}

func (s *sampler) set(r sampleRate) {
	s.rate.Store(uint64(r.n)<<32 | uint64(r.d))
	s.seq.Store(0)
}

func (s *sampler) allow() bool {
	packed := s.rate.Load()
	n, d := packed>>32, packed&0xffffffff
	if d == 0 {
		return true
	}
	return (s.seq.Add(1)-1)%d < n
}
