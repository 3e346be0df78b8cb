package plaintext

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

type storageFake struct {
	content string
}

func (f *storageFake) Save(context.Context, string, io.Reader) error { return nil }

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func TestExtractNormalizesText(t *testing.T) {
	storage := &storageFake{content: "\xEF\xBB\xBFline one\r\nline two\r女"}
	extractor := NewExtractor(storage)

	text, err := extractor.Extract(context.Background(), &domain.Document{StoragePath: "k"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "line one\nline two\n女" {
		t.Fatalf("unexpected normalized text %q", text)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	storage := &storageFake{content: "evidence\x00\xff\xfe"}
	extractor := NewExtractor(storage)

	if _, err := extractor.Extract(context.Background(), &domain.Document{Filename: "dump.txt", StoragePath: "k"}); err == nil {
		t.Fatalf("expected binary rejection")
	}
}
