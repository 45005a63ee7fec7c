// Package chunker splits extracted text into overlapping fixed windows.
// Splitting is deterministic: identical (text, size, overlap) always yields
// identical boundaries, which idempotent re-ingestion relies on.
package chunker

import "fmt"

type Options struct {
	ChunkSize int // window width in characters
	Overlap   int // characters shared between adjacent windows
}

func DefaultOptions() Options {
	return Options{ChunkSize: 2000, Overlap: 200}
}

// TextChunk is one window. Start and End are character offsets into the
// source text, half-open [Start, End).
type TextChunk struct {
	Content string
	Index   int
	Start   int
	End     int
}

// Split slides a window of opts.ChunkSize over text with stride
// ChunkSize-Overlap. The last window is truncated to the remaining text.
// Overlap >= ChunkSize is a configuration error, not an infinite loop.
func Split(text string, opts Options) ([]TextChunk, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", opts.Overlap)
	}
	if opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("overlap %d must be smaller than chunk size %d", opts.Overlap, opts.ChunkSize)
	}

	runes := []rune(text)
	stride := opts.ChunkSize - opts.Overlap

	var chunks []TextChunk
	for start := 0; start < len(runes); start += stride {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, TextChunk{
			Content: string(runes[start:end]),
			Index:   len(chunks),
			Start:   start,
			End:     end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
