// Package metadata lexes and parses the textual thin-pool metadata dump
// (either a two-snapshot diff or a full-volume dump) into a sequence of
// extents describing which regions of the target contain data.
package metadata

// Token identifies one lexical unit of the metadata dump.
type Token int

const (
	TokenEOF Token = iota
	TokenLT         // <
	TokenGT         // >
	TokenSlash      // /
	TokenEquals     // =
	TokenValue      // a quoted attribute value; the text is in Lexeme.Text

	// Named identifiers, valid wherever an element or attribute name is
	// expected.
	TokenSuperblock
	TokenDiff
	TokenDevice
	TokenDifferent
	TokenSame
	TokenRightOnly
	TokenLeftOnly
	TokenSingleMapping
	TokenRangeMapping
	TokenUUID
	TokenTime
	TokenTransaction
	TokenFlags
	TokenVersion
	TokenDataBlockSize
	TokenNrDataBlocks
	TokenLeft
	TokenRight
	TokenBegin
	TokenLength
	TokenDevID
	TokenMappedBlocks
	TokenCreationTime
	TokenSnapTime
	TokenOriginBlock
	TokenOriginBegin
	TokenDataBlock
	TokenDataBegin
)

var tokenNames = map[Token]string{
	TokenEOF:           "EOF",
	TokenLT:            "<",
	TokenGT:            ">",
	TokenSlash:         "/",
	TokenEquals:        "=",
	TokenValue:         "VALUE",
	TokenSuperblock:    "superblock",
	TokenDiff:          "diff",
	TokenDevice:        "device",
	TokenDifferent:     "different",
	TokenSame:          "same",
	TokenRightOnly:     "right_only",
	TokenLeftOnly:      "left_only",
	TokenSingleMapping: "single_mapping",
	TokenRangeMapping:  "range_mapping",
	TokenUUID:          "uuid",
	TokenTime:          "time",
	TokenTransaction:   "transaction",
	TokenFlags:         "flags",
	TokenVersion:       "version",
	TokenDataBlockSize: "data_block_size",
	TokenNrDataBlocks:  "nr_data_blocks",
	TokenLeft:          "left",
	TokenRight:         "right",
	TokenBegin:         "begin",
	TokenLength:        "length",
	TokenDevID:         "dev_id",
	TokenMappedBlocks:  "mapped_blocks",
	TokenCreationTime:  "creation_time",
	TokenSnapTime:      "snap_time",
	TokenOriginBlock:   "origin_block",
	TokenOriginBegin:   "origin_begin",
	TokenDataBlock:     "data_block",
	TokenDataBegin:     "data_begin",
}

// identifiers maps the literal text of a named identifier to its Token.
var identifiers = map[string]Token{
	"superblock":      TokenSuperblock,
	"diff":            TokenDiff,
	"device":          TokenDevice,
	"different":       TokenDifferent,
	"same":            TokenSame,
	"right_only":      TokenRightOnly,
	"left_only":       TokenLeftOnly,
	"single_mapping":  TokenSingleMapping,
	"range_mapping":   TokenRangeMapping,
	"uuid":            TokenUUID,
	"time":            TokenTime,
	"transaction":     TokenTransaction,
	"flags":           TokenFlags,
	"version":         TokenVersion,
	"data_block_size": TokenDataBlockSize,
	"nr_data_blocks":  TokenNrDataBlocks,
	"left":            TokenLeft,
	"right":           TokenRight,
	"begin":           TokenBegin,
	"length":          TokenLength,
	"dev_id":          TokenDevID,
	"mapped_blocks":   TokenMappedBlocks,
	"creation_time":   TokenCreationTime,
	"snap_time":       TokenSnapTime,
	"origin_block":    TokenOriginBlock,
	"origin_begin":    TokenOriginBegin,
	"data_block":      TokenDataBlock,
	"data_begin":      TokenDataBegin,
}

func (t Token) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Lexeme pairs a token with the text it carries (set only for
// TokenValue and named identifiers; empty for punctuation).
type Lexeme struct {
	Token Token
	Text  string
}
