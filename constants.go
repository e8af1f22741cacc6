package thinsr

import "github.com/lvmthin/thin-send-recv/internal/constants"

// Re-exported so callers of the package don't need to import the internal
// constants package directly.
const (
	DiscardChunkBytes = constants.DiscardChunkBytes
	IOBufferBytes     = constants.IOBufferBytes
	LockFilePath      = constants.LockFilePath
)

// ProtocolVersionString is what --version prints: the wire protocol this
// build sends, for scripts that need to tell senders and receivers of
// different vintages apart.
func ProtocolVersionString() string {
	return "thin-send-recv wire protocol 1.1"
}
