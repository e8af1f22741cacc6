package thinsr

import "github.com/lvmthin/thin-send-recv/internal/wire"

// Stats reports the outcome of a completed Send or Receive: the final
// chunk counters, plus any tolerated conditions encountered along the way
// (an EOPNOTSUPP discard, an empty v1.0 stream) surfaced as warnings
// rather than failures.
type Stats struct {
	NChunks  uint64
	NData    uint64
	NUnmap   uint64
	Warnings []string
}

func statsFromWire(s wire.StreamStats) Stats {
	return Stats{NChunks: s.NChunks, NData: s.NData, NUnmap: s.NUnmap}
}

func (s *Stats) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}
