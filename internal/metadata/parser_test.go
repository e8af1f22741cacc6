package metadata

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDiffEmpty(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" data_block_size="128" nr_data_blocks="100">` +
		`<diff left="1" right="2">` +
		`<same begin="0" length="10"/>` +
		`</diff></superblock>`

	var extents []Extent
	hdr, err := ParseDiff(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		extents = append(extents, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(128), hdr.BlockSize)
	require.Empty(t, extents)
}

func TestParseDiffSingleData(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" data_block_size="128" nr_data_blocks="100">` +
		`<diff left="1" right="2">` +
		`<different begin="2" length="3"/>` +
		`</diff></superblock>`

	var extents []Extent
	_, err := ParseDiff(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		extents = append(extents, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Extent{{Begin: 2, Length: 3, Kind: DataPresent}}, extents)
}

func TestParseDiffMixed(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" data_block_size="64" nr_data_blocks="100">` +
		`<diff left="1" right="2">` +
		`<right_only begin="0" length="1"/>` +
		`<left_only begin="1" length="2"/>` +
		`</diff></superblock>`

	var extents []Extent
	_, err := ParseDiff(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		extents = append(extents, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Extent{
		{Begin: 0, Length: 1, Kind: DataPresent},
		{Begin: 1, Length: 2, Kind: DataAbsent},
	}, extents)
}

func TestParseDumpRangeMapping(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" version="2" data_block_size="1" nr_data_blocks="100">` +
		`<device dev_id="0" mapped_blocks="2" transaction="1" creation_time="0" snap_time="0">` +
		`<range_mapping origin_begin="0" data_begin="0" length="2" time="0"/>` +
		`</device></superblock>`

	var extents []Extent
	hdr, err := ParseDump(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		extents = append(extents, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), hdr.BlockSize)
	require.Equal(t, []Extent{{Begin: 0, Length: 2, Kind: DataPresent}}, extents)
}

func TestParseDumpSingleMappingImpliedLength(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" version="2" data_block_size="1" nr_data_blocks="100">` +
		`<device dev_id="0" mapped_blocks="1" transaction="1" creation_time="0" snap_time="0">` +
		`<single_mapping origin_block="5" data_block="5" time="0"/>` +
		`</device></superblock>`

	var extents []Extent
	_, err := ParseDump(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		extents = append(extents, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []Extent{{Begin: 5, Length: 1, Kind: DataPresent}}, extents)
}

func TestParseDumpOptionalFlags(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" flags="x" version="2" data_block_size="1" nr_data_blocks="100">` +
		`<device dev_id="0" mapped_blocks="0" transaction="1" creation_time="0" snap_time="0">` +
		`</device></superblock>`

	_, err := ParseDump(NewScanner(strings.NewReader(doc)), func(e Extent) error {
		return nil
	})
	require.NoError(t, err)
}

func TestParseDiffTokenMismatchReportsExpectedAndGot(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" data_block_size="1" nr_data_blocks="1">` +
		`<diff left="1" right="2">` +
		`<device begin="0" length="1"/>` +
		`</diff></superblock>`

	_, err := ParseDiff(NewScanner(strings.NewReader(doc)), func(Extent) error { return nil })
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, TokenSame, perr.Expected)
	require.Equal(t, TokenDevice, perr.Got)
}

func TestParseDiffSinkErrorAbortsParsing(t *testing.T) {
	doc := `<superblock uuid="u" time="0" transaction="1" data_block_size="1" nr_data_blocks="1">` +
		`<diff left="1" right="2">` +
		`<different begin="0" length="1"/>` +
		`<different begin="1" length="1"/>` +
		`</diff></superblock>`

	calls := 0
	sinkErr := errors.New("sink failed")
	_, err := ParseDiff(NewScanner(strings.NewReader(doc)), func(Extent) error {
		calls++
		return sinkErr
	})
	require.ErrorIs(t, err, sinkErr)
	require.Equal(t, 1, calls)
}
