package pty

import "unicode/utf8"

// maxCarry bounds the bytes held back between reads: a truncated sequence
// is always shorter than the longest UTF-8 encoding.
const maxCarry = utf8.UTFMax

// Decoder turns raw PTY reads into valid UTF-8 text. A multi-byte sequence
// split across two reads is held back and completed by the next read;
// bytes that can never form a valid sequence are dropped.
//
// A Decoder is not safe for concurrent use; each reader loop owns one.
type Decoder struct {
	carry []byte
}

// Decode returns the text decodable from any held-back bytes followed by p,
// and the number of malformed bytes that were discarded.
func (d *Decoder) Decode(p []byte) (string, int) {
	data := p
	if len(d.carry) > 0 {
		data = make([]byte, 0, len(d.carry)+len(p))
		data = append(data, d.carry...)
		data = append(data, p...)
		d.carry = d.carry[:0]
	}

	if utf8.Valid(data) {
		return string(data), 0
	}

	out := make([]byte, 0, len(data))
	dropped := 0
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			out = append(out, data[i])
			i++
			continue
		}
		rest := data[i:]
		if !utf8.FullRune(rest) {
			// Only a truncated tail can be incomplete, and it is shorter
			// than maxCarry by construction.
			if len(rest) < maxCarry {
				d.carry = append(d.carry, rest...)
			} else {
				dropped += len(rest)
			}
			break
		}
		r, size := utf8.DecodeRune(rest)
		if r == utf8.RuneError && size == 1 {
			dropped++
			i++
			continue
		}
		out = append(out, rest[:size]...)
		i += size
	}
	return string(out), dropped
}

// Pending reports how many bytes are held back waiting for the next read.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

// Reset discards held-back bytes and returns how many there were.
func (d *Decoder) Reset() int {
	n := len(d.carry)
	d.carry = d.carry[:0]
	return n
}
