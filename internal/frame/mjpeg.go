package frame

import (
	"bufio"
	"bytes"
	"io"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const maxFrameSize = 32 << 20

// ScanJPEG is a bufio.SplitFunc that yields complete JPEG images from a
// concatenated MJPEG stream. Bytes outside SOI..EOI pairs and a truncated
// trailing image are discarded.
func ScanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		switch {
		case atEOF:
			return len(data), nil, nil
		case len(data) > 1:
			// Keep the last byte: it may be the first half of a marker.
			return len(data) - 1, nil, nil
		default:
			return 0, nil, nil
		}
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// Pump reads an MJPEG stream from r and publishes every complete image to
// slot. It returns the number of frames published when r is exhausted.
func Pump(r io.Reader, slot *Slot) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxFrameSize)
	sc.Split(ScanJPEG)

	n := 0
	for sc.Scan() {
		// Scanner reuses its buffer; the slot needs its own copy.
		slot.Put(bytes.Clone(sc.Bytes()))
		n++
	}
	return n, sc.Err()
}
