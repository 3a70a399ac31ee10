// Package worker launches worker processes and speaks their NDJSON protocol.
package worker

import "bytes"

// LineFramer splits a byte stream into newline-delimited lines.
//
// Framing happens on raw bytes, so a multi-byte UTF-8 character split across
// two chunks is reassembled intact. A trailing partial line is buffered until
// a later chunk completes it or Flush is called.
type LineFramer struct {
	buf []byte
}

// NewLineFramer creates an empty LineFramer.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push appends chunk and returns every line it completed, in order.
// Returned lines never contain the newline delimiter; a trailing carriage
// return is stripped and blank lines are skipped. The returned slices are
// owned by the caller.
func (f *LineFramer) Push(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		if line := trimLine(f.buf[:idx]); len(line) > 0 {
			lines = append(lines, bytes.Clone(line))
		}
		f.buf = f.buf[idx+1:]
	}

	// Reclaim the consumed prefix once nothing is pending.
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
	return lines
}

// Flush returns the buffered partial line, if any, and resets the framer.
// Call it once the stream is closed so an unterminated last line is not lost.
func (f *LineFramer) Flush() ([]byte, bool) {
	line := trimLine(f.buf)
	f.buf = nil
	if len(line) == 0 {
		return nil, false
	}
	return bytes.Clone(line), true
}

// Buffered reports how many bytes are waiting for a newline.
func (f *LineFramer) Buffered() int {
	return len(f.buf)
}

func trimLine(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	return line
}
