// Package stream consumes the newline-delimited status protocol emitted
// by the formulation service and drives one live session per controller.
package stream

import "strings"

// FrameDecoder incrementally splits a byte stream into newline-delimited
// frames. Chunk boundaries carry no meaning: any partitioning of the same
// bytes yields the same sequence of complete frames, with the trailing
// partial frame held back until its newline (or Flush) arrives.
type FrameDecoder struct {
	rest string
}

// Decode appends chunk to the internal buffer and returns all complete
// frames, without their newline terminators.
func (d *FrameDecoder) Decode(chunk []byte) []string {
	parts := strings.Split(d.rest+string(chunk), "\n")
	d.rest = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// Flush returns any buffered partial frame at end of stream. The second
// return is false when nothing was buffered.
func (d *FrameDecoder) Flush() (string, bool) {
	s := d.rest
	d.rest = ""
	return s, s != ""
}
