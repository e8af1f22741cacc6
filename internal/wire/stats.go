package wire

// StreamStats tracks the chunk counts a sender or receiver reports at the
// end of a stream. A sender seeds NChunks at 2 to account for the
// BEGIN_STREAM and END_STREAM chunks it writes around the data itself.
type StreamStats struct {
	NChunks uint64
	NData   uint64
	NUnmap  uint64
}

// NewSenderStats returns stats seeded for a sender, which always emits a
// BEGIN_STREAM and END_STREAM chunk in addition to the data chunks.
func NewSenderStats() StreamStats {
	return StreamStats{NChunks: 2}
}

// RecordData increments the counters for one CMD_DATA chunk.
func (s *StreamStats) RecordData() {
	s.NChunks++
	s.NData++
}

// RecordUnmap increments the counters for one CMD_UNMAP chunk.
func (s *StreamStats) RecordUnmap() {
	s.NChunks++
	s.NUnmap++
}
