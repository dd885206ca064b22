package lineparser

import "bytes"

// maxPartial bounds the unterminated tail kept between chunks.
const maxPartial = 4 << 10

// Framer splits a byte stream into lines on '\r' and/or '\n', keeping the
// trailing partial line for the next chunk.
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends chunk and returns the complete, non-empty lines it closed.
func (f *Framer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexAny(f.buf, "\r\n")
		if i < 0 {
			break
		}
		if i > 0 {
			lines = append(lines, string(f.buf[:i]))
		}
		f.buf = f.buf[i+1:]
	}

	if len(f.buf) > maxPartial {
		// A device that never terminates its lines would grow this forever.
		f.buf = nil
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending returns the buffered partial line.
func (f *Framer) Pending() string {
	return string(f.buf)
}
