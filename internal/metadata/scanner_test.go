package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScannerTokenizesPunctuationAndValues(t *testing.T) {
	s := NewScanner(strings.NewReader(`<same begin="0" length="10"/>`))

	want := []Token{TokenLT, TokenSame, TokenBegin, TokenEquals, TokenValue,
		TokenLength, TokenEquals, TokenValue, TokenSlash, TokenGT, TokenEOF}
	for i, w := range want {
		lx, err := s.Next()
		require.NoError(t, err, "token %d", i)
		require.Equal(t, w, lx.Token, "token %d", i)
	}
}

func TestScannerValueText(t *testing.T) {
	s := NewScanner(strings.NewReader(`"hello-world_123"`))
	lx, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, TokenValue, lx.Token)
	require.Equal(t, "hello-world_123", lx.Text)
}

func TestScannerPeekDoesNotConsume(t *testing.T) {
	s := NewScanner(strings.NewReader(`<diff`))
	p1, err := s.Peek()
	require.NoError(t, err)
	require.Equal(t, TokenLT, p1.Token)

	n1, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, TokenLT, n1.Token)

	n2, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, TokenDiff, n2.Token)
}

func TestScannerUnrecognizedIdentifier(t *testing.T) {
	s := NewScanner(strings.NewReader(`bogus_token`))
	_, err := s.Next()
	require.Error(t, err)
}

func TestScannerUnterminatedValue(t *testing.T) {
	s := NewScanner(strings.NewReader(`"unterminated`))
	_, err := s.Next()
	require.Error(t, err)
}
