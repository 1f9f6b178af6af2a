package io

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zeebo/xxh3"
)

// chunkRecorder records every Write call as a separate chunk.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (r *chunkRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, append([]byte(nil), p...))
	return len(p), nil
}

func (r *chunkRecorder) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.chunks...)
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestShardWriterFlushesBeforeExceedingCapacity(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	w := NewShardWriter(0, "rec", rec, nil, &ShardOptions{BufferSize: 16})

	var want bytes.Buffer
	for i := 0; i < 10; i++ {
		line := strings.Repeat(string(rune('a'+i)), 4)
		if err := w.Accept(line); err != nil {
			t.Fatalf("Accept: %v", err)
		}
		want.WriteString(line + "\n")
		if w.Buffered() > w.Capacity() {
			t.Fatalf("buffer holds %d bytes, capacity %d", w.Buffered(), w.Capacity())
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	chunks := rec.snapshot()
	if len(chunks) != 4 {
		t.Fatalf("expected 4 writes (3 on overflow + 1 on close), got %d", len(chunks))
	}
	var got bytes.Buffer
	for _, c := range chunks {
		if len(c) > 16 {
			t.Fatalf("chunk of %d bytes exceeds capacity", len(c))
		}
		got.Write(c)
	}
	if got.String() != want.String() {
		t.Fatalf("flushed bytes mismatch:\n got %q\nwant %q", got.String(), want.String())
	}
	if st := w.Stats(); st.FlushCount != 4 || st.LinesAccepted != 10 || st.BytesFlushed != int64(want.Len()) {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestShardWriterOversizedLineIsWrittenAlone(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	w := NewShardWriter(0, "rec", rec, nil, &ShardOptions{BufferSize: 8})

	if err := w.Accept("ab"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := w.Accept("0123456789"); err != nil {
		t.Fatalf("Accept oversized: %v", err)
	}
	if w.Buffered() != 0 {
		t.Fatalf("expected empty buffer after oversized line, got %d bytes", w.Buffered())
	}
	if err := w.Accept("cd"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	chunks := rec.snapshot()
	want := []string{"ab\n", "0123456789\n", "cd\n"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if string(chunks[i]) != want[i] {
			t.Fatalf("chunk %d = %q; want %q", i, chunks[i], want[i])
		}
	}
}

func TestShardWriterFlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	w := NewShardWriter(0, "rec", rec, nil, &ShardOptions{BufferSize: 32})
	for i := 0; i < 3; i++ {
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.Accept("late"); !errors.Is(err, ErrShardClosed) {
		t.Fatalf("expected ErrShardClosed, got %v", err)
	}
}

func TestShardWriterDigestMatchesWrittenBytes(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	w := NewShardWriter(2, "buf", &out, nil, &ShardOptions{BufferSize: 64})
	for _, line := range []string{"api.example.com", "dev.example.com", "api.dev.example.com", "dev.api.example.com"} {
		if err := w.Accept(line); err != nil {
			t.Fatalf("Accept: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, want := w.Digest(), xxh3.Hash(out.Bytes()); got != want {
		t.Fatalf("digest = %x; want %x", got, want)
	}
}

func TestShardWriterRunReportsFailureAndKeepsDraining(t *testing.T) {
	t.Parallel()

	fw := &failingWriter{}
	w := NewShardWriter(1, "broken", fw, nil, &ShardOptions{BufferSize: 8, FlushInterval: time.Hour})

	in := make(chan string)
	var reports []error
	done := make(chan error, 1)
	go func() {
		done <- w.Run(in, func(err error) { reports = append(reports, err) })
	}()

	for i := 0; i < 20; i++ {
		in <- "line"
	}
	close(in)

	err := <-done
	if !errors.Is(err, ErrShardWrite) {
		t.Fatalf("expected ErrShardWrite, got %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected exactly one error report, got %d", len(reports))
	}
	if fw.calls != 1 {
		t.Fatalf("expected the failed destination to be written once, got %d", fw.calls)
	}
	if w.Stats().Dropped == 0 {
		t.Fatalf("expected dropped lines to be counted after failure")
	}
}

func TestShardWriterRunFlushesOnInterval(t *testing.T) {
	t.Parallel()

	rec := &chunkRecorder{}
	w := NewShardWriter(0, "rec", rec, nil, &ShardOptions{BufferSize: 1024, FlushInterval: 10 * time.Millisecond})

	in := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- w.Run(in, nil) }()

	in <- "tick.example.com"
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffer was not flushed by the interval ticker")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(bytes.Join(rec.snapshot(), nil)); got != "tick.example.com\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestOpenShardFileCompressed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.txt.gz")
	w, err := OpenShardFile(0, path, &ShardOptions{BufferSize: 32, Compressed: true})
	if err != nil {
		t.Fatalf("OpenShardFile: %v", err)
	}
	lines := []string{"a.example.com", "b.example.com", "a.b.example.com"}
	for _, l := range lines {
		if err := w.Accept(l); err != nil {
			t.Fatalf("Accept: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	b, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(b) != strings.Join(lines, "\n")+"\n" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}
