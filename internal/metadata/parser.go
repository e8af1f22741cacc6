package metadata

import (
	"fmt"
	"strconv"
)

// ExtentKind classifies an Extent as backed by real data or as unmapped
// (a hole a receiver should discard rather than copy).
type ExtentKind int

const (
	DataPresent ExtentKind = iota
	DataAbsent
)

// Extent is one contiguous run of data blocks, in units of the enclosing
// stream's BlockSize, emitted by ParseDiff or ParseDump. The send driver
// is responsible for turning block coordinates into byte offsets by
// multiplying by BlockSize*512.
type Extent struct {
	Begin  uint64
	Length uint64
	Kind   ExtentKind
}

// ExtentSink receives extents as the parser discovers them, in stream
// order. Returning an error aborts parsing; the error is propagated
// unwrapped so a sink can signal its own I/O failure (e.g. a send-side
// write failure) without the parser needing to know about I/O at all.
type ExtentSink func(Extent) error

// MetadataHeader carries the superblock fields every grammar shares.
type MetadataHeader struct {
	BlockSize    uint64 // sectors per data block
	NrDataBlocks uint64
}

// ParseError reports a token mismatch while parsing the metadata grammar,
// fatal and non-recoverable per the grammar's design.
type ParseError struct {
	Expected Token
	Got      Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("metadata: expected %s, got %s", e.Expected, e.Got)
}

type parser struct {
	s *Scanner
}

func (p *parser) expect(want Token) (Lexeme, error) {
	lx, err := p.s.Next()
	if err != nil {
		return Lexeme{}, err
	}
	if lx.Token != want {
		return Lexeme{}, &ParseError{Expected: want, Got: lx.Token}
	}
	return lx, nil
}

func (p *parser) expectValue() (string, error) {
	lx, err := p.expect(TokenValue)
	if err != nil {
		return "", err
	}
	return lx.Text, nil
}

func (p *parser) expectAttr(name Token) (string, error) {
	if _, err := p.expect(name); err != nil {
		return "", err
	}
	if _, err := p.expect(TokenEquals); err != nil {
		return "", err
	}
	return p.expectValue()
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metadata: invalid integer %q: %w", s, err)
	}
	return v, nil
}

// expectSelfClose consumes a trailing "/>" closing an empty element.
func (p *parser) expectSelfClose() error {
	if _, err := p.expect(TokenSlash); err != nil {
		return err
	}
	_, err := p.expect(TokenGT)
	return err
}

// expectCloseTag consumes "</name>".
func (p *parser) expectCloseTag(name Token) error {
	if _, err := p.expect(TokenLT); err != nil {
		return err
	}
	if _, err := p.expect(TokenSlash); err != nil {
		return err
	}
	if _, err := p.expect(name); err != nil {
		return err
	}
	_, err := p.expect(TokenGT)
	return err
}

// ParseDiff parses a two-snapshot delta dump, invoking sink for each
// different/right_only (DataPresent) or left_only (DataAbsent) entry;
// same entries are ignored. The returned MetadataHeader carries the
// superblock's block size and block count; callers that need it while
// extents are still being discovered should have sink accumulate
// extents and convert them to byte offsets once ParseDiff returns,
// since the grammar only guarantees the header precedes the entries
// textually, not that it reaches the caller any earlier.
func ParseDiff(s *Scanner, sink ExtentSink) (MetadataHeader, error) {
	p := &parser{s: s}

	if _, err := p.expect(TokenLT); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expect(TokenSuperblock); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenUUID); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenTime); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenTransaction); err != nil {
		return MetadataHeader{}, err
	}
	dbsStr, err := p.expectAttr(TokenDataBlockSize)
	if err != nil {
		return MetadataHeader{}, err
	}
	ndbStr, err := p.expectAttr(TokenNrDataBlocks)
	if err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expect(TokenGT); err != nil {
		return MetadataHeader{}, err
	}

	blockSize, err := parseUint(dbsStr)
	if err != nil {
		return MetadataHeader{}, err
	}
	nrDataBlocks, err := parseUint(ndbStr)
	if err != nil {
		return MetadataHeader{}, err
	}
	hdr := MetadataHeader{BlockSize: blockSize, NrDataBlocks: nrDataBlocks}

	if _, err := p.expect(TokenLT); err != nil {
		return hdr, err
	}
	if _, err := p.expect(TokenDiff); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenLeft); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenRight); err != nil {
		return hdr, err
	}
	if _, err := p.expect(TokenGT); err != nil {
		return hdr, err
	}

	for {
		if _, err := p.expect(TokenLT); err != nil {
			return hdr, err
		}
		next, err := p.s.Next()
		if err != nil {
			return hdr, err
		}
		if next.Token == TokenSlash {
			if _, err := p.expect(TokenDiff); err != nil {
				return hdr, err
			}
			if _, err := p.expect(TokenGT); err != nil {
				return hdr, err
			}
			break
		}

		switch next.Token {
		case TokenSame, TokenDifferent, TokenLeftOnly, TokenRightOnly:
		default:
			return hdr, &ParseError{Expected: TokenSame, Got: next.Token}
		}

		beginStr, err := p.expectAttr(TokenBegin)
		if err != nil {
			return hdr, err
		}
		lengthStr, err := p.expectAttr(TokenLength)
		if err != nil {
			return hdr, err
		}
		if err := p.expectSelfClose(); err != nil {
			return hdr, err
		}

		if next.Token == TokenSame {
			continue
		}

		begin, err := parseUint(beginStr)
		if err != nil {
			return hdr, err
		}
		length, err := parseUint(lengthStr)
		if err != nil {
			return hdr, err
		}

		kind := DataPresent
		if next.Token == TokenLeftOnly {
			kind = DataAbsent
		}
		if err := sink(Extent{Begin: begin, Length: length, Kind: kind}); err != nil {
			return hdr, err
		}
	}

	if err := p.expectCloseTag(TokenSuperblock); err != nil {
		return hdr, err
	}
	return hdr, nil
}

// ParseDump parses a full-volume dump, invoking sink for every mapping;
// all emitted extents are DataPresent.
func ParseDump(s *Scanner, sink ExtentSink) (MetadataHeader, error) {
	p := &parser{s: s}

	if _, err := p.expect(TokenLT); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expect(TokenSuperblock); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenUUID); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenTime); err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expectAttr(TokenTransaction); err != nil {
		return MetadataHeader{}, err
	}

	// flags is optional: peek the next identifier and, if it's "flags",
	// consume it before falling through to the required "version".
	peeked, err := p.s.Peek()
	if err != nil {
		return MetadataHeader{}, err
	}
	if peeked.Token == TokenFlags {
		if _, err := p.expectAttr(TokenFlags); err != nil {
			return MetadataHeader{}, err
		}
	}
	if _, err := p.expectAttr(TokenVersion); err != nil {
		return MetadataHeader{}, err
	}
	dbsStr, err := p.expectAttr(TokenDataBlockSize)
	if err != nil {
		return MetadataHeader{}, err
	}
	ndbStr, err := p.expectAttr(TokenNrDataBlocks)
	if err != nil {
		return MetadataHeader{}, err
	}
	if _, err := p.expect(TokenGT); err != nil {
		return MetadataHeader{}, err
	}

	blockSize, err := parseUint(dbsStr)
	if err != nil {
		return MetadataHeader{}, err
	}
	nrDataBlocks, err := parseUint(ndbStr)
	if err != nil {
		return MetadataHeader{}, err
	}
	hdr := MetadataHeader{BlockSize: blockSize, NrDataBlocks: nrDataBlocks}

	if _, err := p.expect(TokenLT); err != nil {
		return hdr, err
	}
	if _, err := p.expect(TokenDevice); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenDevID); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenMappedBlocks); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenTransaction); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenCreationTime); err != nil {
		return hdr, err
	}
	if _, err := p.expectAttr(TokenSnapTime); err != nil {
		return hdr, err
	}
	if _, err := p.expect(TokenGT); err != nil {
		return hdr, err
	}

	for {
		if _, err := p.expect(TokenLT); err != nil {
			return hdr, err
		}
		next, err := p.s.Next()
		if err != nil {
			return hdr, err
		}
		if next.Token == TokenSlash {
			if _, err := p.expect(TokenDevice); err != nil {
				return hdr, err
			}
			if _, err := p.expect(TokenGT); err != nil {
				return hdr, err
			}
			break
		}

		switch next.Token {
		case TokenSingleMapping:
			originStr, err := p.expectAttr(TokenOriginBlock)
			if err != nil {
				return hdr, err
			}
			if _, err := p.expectAttr(TokenDataBlock); err != nil {
				return hdr, err
			}
			if _, err := p.expectAttr(TokenTime); err != nil {
				return hdr, err
			}
			if err := p.expectSelfClose(); err != nil {
				return hdr, err
			}
			origin, err := parseUint(originStr)
			if err != nil {
				return hdr, err
			}
			if err := sink(Extent{Begin: origin, Length: 1, Kind: DataPresent}); err != nil {
				return hdr, err
			}
		case TokenRangeMapping:
			originStr, err := p.expectAttr(TokenOriginBegin)
			if err != nil {
				return hdr, err
			}
			if _, err := p.expectAttr(TokenDataBegin); err != nil {
				return hdr, err
			}
			lengthStr, err := p.expectAttr(TokenLength)
			if err != nil {
				return hdr, err
			}
			if _, err := p.expectAttr(TokenTime); err != nil {
				return hdr, err
			}
			if err := p.expectSelfClose(); err != nil {
				return hdr, err
			}
			origin, err := parseUint(originStr)
			if err != nil {
				return hdr, err
			}
			length, err := parseUint(lengthStr)
			if err != nil {
				return hdr, err
			}
			if err := sink(Extent{Begin: origin, Length: length, Kind: DataPresent}); err != nil {
				return hdr, err
			}
		default:
			return hdr, &ParseError{Expected: TokenSingleMapping, Got: next.Token}
		}
	}

	if err := p.expectCloseTag(TokenSuperblock); err != nil {
		return hdr, err
	}
	return hdr, nil
}
