package gdbconsole

import "bytes"

// Splitter accumulates raw debugger output and splits it into frames, one
// frame per prompt occurrence. Output arrives in arbitrary chunks, a frame
// is complete only once the prompt sentinel has fully appeared, even when
// the sentinel itself is split across chunks.
type Splitter struct {
	prompt []byte
	buf    []byte
}

// NewSplitter returns a Splitter that frames on the given prompt sentinel.
func NewSplitter(prompt string) *Splitter {
	return &Splitter{prompt: []byte(prompt)}
}

// Feed appends a chunk of output and returns the frames it completed, each
// including the trailing prompt. Output after the last prompt stays
// buffered until a later chunk completes it.
func (s *Splitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)
	var frames []string
	for {
		i := bytes.Index(s.buf, s.prompt)
		if i < 0 {
			break
		}
		end := i + len(s.prompt)
		frames = append(frames, string(s.buf[:end]))
		s.buf = append(s.buf[:0], s.buf[end:]...)
	}
	return frames
}

// Pending returns the output buffered after the last complete frame.
func (s *Splitter) Pending() string {
	return string(s.buf)
}
