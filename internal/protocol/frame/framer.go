package frame

import "io"

// Framer accumulates transport bytes into frames. It is not safe for
// concurrent use; one receive loop owns it.
type Framer struct {
	buf []byte
}

// Feed appends p and returns every frame completed by it. On a malformed
// length byte the accumulated bytes are discarded and ErrShortFrame is
// returned alongside any frames completed before the fault.
func (f *Framer) Feed(p []byte) ([]Frame, error) {
	f.buf = append(f.buf, p...)
	var out []Frame
	for len(f.buf) >= 2 {
		length := int(f.buf[1])
		if length < HeaderLen {
			f.Reset()
			return out, ErrShortFrame
		}
		if len(f.buf) < length {
			break
		}
		fr, err := Parse(f.buf[:length])
		if err != nil {
			f.Reset()
			return out, err
		}
		out = append(out, fr)
		f.buf = f.buf[length:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return out, nil
}

// Pending reports how many bytes of an incomplete frame are held.
func (f *Framer) Pending() int {
	return len(f.buf)
}

func (f *Framer) Reset() {
	f.buf = nil
}

// Reader yields frames from a byte stream using a Framer.
type Reader struct {
	r      io.Reader
	framer Framer
	ready  []Frame
	chunk  []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, MaxLen)}
}

// Next blocks until one full frame is available or the stream fails.
// ErrShortFrame is returned for a malformed frame; the reader stays usable.
func (r *Reader) Next() (Frame, error) {
	for len(r.ready) == 0 {
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			frames, ferr := r.framer.Feed(r.chunk[:n])
			r.ready = append(r.ready, frames...)
			if ferr != nil && len(r.ready) == 0 {
				return Frame{}, ferr
			}
		}
		if err != nil && len(r.ready) == 0 {
			if err == io.EOF && r.framer.Pending() > 0 {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}
	next := r.ready[0]
	r.ready = r.ready[1:]
	return next, nil
}
