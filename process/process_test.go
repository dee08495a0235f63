package process

import (
	"io"
	"testing"
)

type pipeRWC struct {
	r io.Reader
	w io.Writer
}

func (p pipeRWC) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeRWC) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeRWC) Close() error                { return nil }

func TestFromReadWriteCloserReadsLines(t *testing.T) {
	pr, pw := io.Pipe()
	proc := FromReadWriteCloser(pipeRWC{r: pr, w: io.Discard})

	go pw.Write([]byte("hello\n"))

	line, err := proc.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(line) != "hello\n" {
		t.Fatalf("expected %q, got %q", "hello\n", line)
	}
}

func TestWriteLineAppendsNewline(t *testing.T) {
	pr, pw := io.Pipe()
	proc := FromReadWriteCloser(pipeRWC{r: pr, w: pw})

	errCh := make(chan error, 1)
	go func() { errCh <- proc.WriteLine([]byte("ping")) }()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(pr, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf) != "ping\n" {
		t.Fatalf("expected %q, got %q", "ping\n", buf)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
