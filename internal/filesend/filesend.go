// Package filesend implements the FileSender: streaming a file's contents
// to the client either as escaped text (for item types 0, 2, 6) or as raw
// binary (everything else).
package filesend

import (
	"bufio"
	"io"
)

// MaxTextLine bounds a single text line (spec §9); lines are not expected
// to legitimately exceed this, but a pathological file must not OOM the
// connection goroutine.
const MaxTextLine = 1 << 20 // 1 MiB

// BinaryChunkSize is the read/write chunk size for binary streaming.
const BinaryChunkSize = 1 << 20 // 1 MiB

// Text streams r to w line by line, rewriting any line that is exactly "."
// to ". " so it cannot be confused with the end-of-menu terminator (spec
// §4.10, P6). It does not write the final ".\r\n" terminator; the caller
// does that once, after Text returns, consistent with every other
// menu/response writer in the pipeline.
func Text(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxTextLine)

	bw := bufio.NewWriter(w)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "." {
			line = ". "
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// Binary streams r to w verbatim in BinaryChunkSize chunks, with no
// terminator of any kind.
func Binary(w io.Writer, r io.Reader) error {
	buf := make([]byte, BinaryChunkSize)
	_, err := io.CopyBuffer(w, r, buf)
	return err
}
