package chunking

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Splitter cuts extracted text into overlapping token windows using the same
// tokenizer family the embedding model sees, so chunk sizes track real model
// input limits rather than character counts.
type Splitter struct {
	chunkSize int
	overlap   int
	encoder   *tiktoken.Tiktoken
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	encoder, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return &Splitter{
		chunkSize: chunkSize,
		overlap:   overlap,
		encoder:   encoder,
	}, nil
}

func (s *Splitter) Split(text string) []string {
	tokens := s.encoder.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	step := s.chunkSize - s.overlap
	if step <= 0 {
		step = s.chunkSize
	}

	out := make([]string, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := start + s.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := strings.TrimSpace(s.encoder.Decode(tokens[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return out
}
