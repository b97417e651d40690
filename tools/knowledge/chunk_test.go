package knowledge

import (
	"strings"
	"testing"
)

func TestMakeChunksShortText(t *testing.T) {
	got := makeChunks("  short text  ", 100, 10)
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("makeChunks = %q", got)
	}
	if got := makeChunks("   ", 100, 10); got != nil {
		t.Fatalf("blank text produced chunks: %q", got)
	}
}

func TestMakeChunksCoversTextWithOverlap(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")
	chunks := makeChunks(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if n := len([]rune(c)); n > 100 {
			t.Fatalf("chunk longer than size: %d", n)
		}
		if strings.HasPrefix(c, "ord") {
			t.Fatalf("chunk split inside a word: %q", c)
		}
		total += len(c)
	}
	if total < len(text) {
		t.Fatalf("chunks cover %d of %d bytes", total, len(text))
	}
}

func TestMakeChunksMultibyte(t *testing.T) {
	text := strings.Repeat("é", 250)
	for _, c := range makeChunks(text, 100, 10) {
		if strings.ContainsRune(c, '�') {
			t.Fatalf("chunk contains broken rune: %q", c)
		}
	}
}
