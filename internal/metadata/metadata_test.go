package metadata

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-kr/devpilot/internal/apperr"
)

func TestDecode_NoBlock(t *testing.T) {
	for _, body := range []string{
		"",
		"plain issue body",
		"has a comment <!-- but not ours -->",
		"<!-- priority: M -->", // iteration missing
	} {
		p, i := Decode(body)
		assert.Equal(t, PriorityUnknown, p, "body: %q", body)
		assert.Equal(t, IterationUnknown, i, "body: %q", body)
	}
}

func TestDecode_Tolerance(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		p, i := Decode("body\n\n<!--\nPRIORITY: S\nIteration: 3\n-->")
		assert.Equal(t, "S", p)
		assert.Equal(t, 3, i)
	})

	t.Run("extra whitespace", func(t *testing.T) {
		p, i := Decode("<!--   priority:   C  \n   iteration:  12   -->")
		assert.Equal(t, "C", p)
		assert.Equal(t, 12, i)
	})

	t.Run("priority token returned verbatim", func(t *testing.T) {
		// Decode does not validate; issues written by older tooling may
		// carry tokens Encode would reject.
		p, i := Decode("<!--\npriority: X\niteration: 0\n-->")
		assert.Equal(t, "X", p)
		assert.Equal(t, 0, i)
	})
}

func TestEncode_RoundTrip(t *testing.T) {
	bodies := []string{
		"",
		"short body",
		"multi\nline\nbody with trailing newline\n",
		"body with unrelated comment <!-- note -->",
	}
	for _, priority := range []string{"M", "S", "C", "W"} {
		for _, body := range bodies {
			for _, iteration := range []int{0, 1, 42} {
				encoded, err := Encode(body, priority, iteration)
				require.NoError(t, err)

				p, i := Decode(encoded)
				assert.Equal(t, priority, p)
				assert.Equal(t, iteration, i)
			}
		}
	}
}

func TestEncode_AppendsAfterBlankLine(t *testing.T) {
	encoded, err := Encode("the body", "M", 2)
	require.NoError(t, err)
	assert.Equal(t, "the body\n\n<!--\npriority: M\niteration: 2\n-->", encoded)
}

func TestEncode_ReplacesExistingBlock(t *testing.T) {
	first, err := Encode("body", "M", 1)
	require.NoError(t, err)

	second, err := Encode(first, "W", 7)
	require.NoError(t, err)

	p, i := Decode(second)
	assert.Equal(t, "W", p)
	assert.Equal(t, 7, i)

	// Only one block may survive a re-encode.
	assert.Equal(t, 1, len(replacePattern.FindAllString(second, -1)))
}

func TestEncode_Invalid(t *testing.T) {
	cases := []struct {
		priority  string
		iteration int
	}{
		{"X", 1},
		{"m", 1}, // lower case not accepted on write
		{"", 1},
		{"MS", 1},
		{"M", -1},
		{"M", IterationUnknown},
		{PriorityUnknown, 1},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_%d", tc.priority, tc.iteration), func(t *testing.T) {
			_, err := Encode("body", tc.priority, tc.iteration)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.InvalidPriority(tc.priority, tc.iteration)))
			assert.Equal(t, apperr.KindInvalidPriority, apperr.KindOf(err))
		})
	}
}
