package memory

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the maximum character count per chunk.
const DefaultChunkSize = 500

// splitChunks splits text into chunks of at most maxChunkSize characters.
// Paragraphs that fit the limit are kept whole; oversized paragraphs are
// split at sentence boundaries and the sentences greedily repacked. A single
// sentence longer than the limit is emitted as its own chunk rather than
// truncated, so no content is ever lost.
func splitChunks(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}

	var chunks []string
	for _, para := range splitParagraphs(text) {
		if utf8.RuneCountInString(para) <= maxChunkSize {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, packSentences(splitSentences(para), maxChunkSize)...)
	}
	return chunks
}

// splitParagraphs splits text on blank-line boundaries and normalizes each
// paragraph's internal whitespace runs to single spaces. Empty paragraphs
// are dropped.
func splitParagraphs(text string) []string {
	var paragraphs []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(strings.Join(fields, " "))
	}
	flush()

	return paragraphs
}

// splitSentences splits a normalized paragraph at sentence-ending
// punctuation followed by whitespace. The punctuation stays with its
// sentence.
func splitSentences(para string) []string {
	var sentences []string
	runes := []rune(para)

	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// packSentences greedily packs sentences into chunks, flushing the buffer
// whenever the next sentence would push it past maxChunkSize.
func packSentences(sentences []string, maxChunkSize int) []string {
	var chunks []string
	var buffer strings.Builder
	bufferLen := 0

	flush := func() {
		if buffer.Len() > 0 {
			chunks = append(chunks, buffer.String())
			buffer.Reset()
			bufferLen = 0
		}
	}

	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)
		if bufferLen > 0 && bufferLen+1+sentenceLen > maxChunkSize {
			flush()
		}
		if bufferLen > 0 {
			buffer.WriteString(" ")
			bufferLen++
		}
		buffer.WriteString(sentence)
		bufferLen += sentenceLen
	}
	flush()

	return chunks
}
