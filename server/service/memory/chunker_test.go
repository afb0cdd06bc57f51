package memory

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		maxChunkSize int
		want         []string
	}{
		{
			name:         "short text is a single chunk",
			text:         "Hello world.",
			maxChunkSize: 500,
			want:         []string{"Hello world."},
		},
		{
			name:         "empty text yields no chunks",
			text:         "",
			maxChunkSize: 500,
			want:         nil,
		},
		{
			name:         "whitespace only yields no chunks",
			text:         "  \n\t\n   ",
			maxChunkSize: 500,
			want:         nil,
		},
		{
			name:         "paragraphs become separate chunks",
			text:         "First paragraph.\n\nSecond paragraph.",
			maxChunkSize: 500,
			want:         []string{"First paragraph.", "Second paragraph."},
		},
		{
			name:         "whitespace runs collapse to single spaces",
			text:         "a   b\tc\nd",
			maxChunkSize: 500,
			want:         []string{"a b c d"},
		},
		{
			name:         "multiple blank lines are one separator",
			text:         "one\n\n\n\ntwo",
			maxChunkSize: 500,
			want:         []string{"one", "two"},
		},
		{
			name:         "oversized paragraph splits at sentence boundaries",
			text:         "One two three. Four five six. Seven eight nine.",
			maxChunkSize: 20,
			want:         []string{"One two three.", "Four five six.", "Seven eight nine."},
		},
		{
			name:         "sentences pack greedily up to the limit",
			text:         "One two three. Four five six. Seven eight nine.",
			maxChunkSize: 35,
			want:         []string{"One two three. Four five six.", "Seven eight nine."},
		},
		{
			name:         "oversized sentence is kept whole",
			text:         "This sentence is far too long to fit.",
			maxChunkSize: 10,
			want:         []string{"This sentence is far too long to fit."},
		},
		{
			name:         "question and exclamation marks end sentences",
			text:         "Is it done? Yes! Ship it.",
			maxChunkSize: 13,
			want:         []string{"Is it done?", "Yes! Ship it."},
		},
		{
			name:         "punctuation without following space does not split",
			text:         "See item 1.2 of the plan. Then act.",
			maxChunkSize: 26,
			want:         []string{"See item 1.2 of the plan.", "Then act."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitChunks(tt.text, tt.maxChunkSize)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitChunksCountsRunes(t *testing.T) {
	// Two sentences of six runes each; byte length is larger. A byte-based
	// limit would refuse to pack them together.
	text := "héllo. wörld."
	got := splitChunks(text, 13)
	require.Equal(t, []string{"héllo. wörld."}, got)

	got = splitChunks(text, 6)
	require.Equal(t, []string{"héllo.", "wörld."}, got)
}

func TestSplitChunksDefaultSize(t *testing.T) {
	text := strings.Repeat("word ", 90) + "end."
	require.Equal(t, splitChunks(text, DefaultChunkSize), splitChunks(text, 0))
}

func TestSplitChunksProperties(t *testing.T) {
	texts := []string{
		"Single short text.",
		"First paragraph with some words.\n\nSecond paragraph. It has two sentences!\n\nThird one?",
		strings.Repeat("A fairly plain sentence about systems. ", 40),
		"No terminal punctuation at all just a stream of words " + strings.Repeat("again and ", 30),
		"Mixed\twhitespace\nand   runs.\n\nUnicode: héllo wörld. Ça va bien. Проверка связи.",
	}

	for _, text := range texts {
		for _, maxChunkSize := range []int{25, 80, 500} {
			chunks := splitChunks(text, maxChunkSize)

			for _, chunk := range chunks {
				require.NotEmpty(t, chunk)
				if utf8.RuneCountInString(chunk) > maxChunkSize {
					// Only a single unsplittable sentence may exceed the
					// limit.
					require.NotContains(t, chunk, ". ")
					require.NotContains(t, chunk, "! ")
					require.NotContains(t, chunk, "? ")
				}
			}

			// Joining the chunks back with single spaces reproduces the
			// whitespace-normalized input.
			normalized := strings.Join(splitParagraphs(text), " ")
			assert.Equal(t, normalized, strings.Join(chunks, " "))
		}
	}
}
