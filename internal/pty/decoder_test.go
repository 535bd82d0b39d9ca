package pty

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecoderPassesValidText(t *testing.T) {
	var d Decoder
	text, dropped := d.Decode([]byte("hello, wörld"))
	assert.Equal(t, "hello, wörld", text)
	assert.Zero(t, dropped)
	assert.Zero(t, d.Pending())
}

func TestDecoderReassemblesSplitCharacter(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"two byte", "café au lait"},
		{"three byte", "price: €42"},
		{"four byte", "ok \U0001F600 done"},
		{"cjk", "日本語テキスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(tt.input)
			// Every split point, including ones inside a multi-byte sequence.
			for cut := 0; cut <= len(raw); cut++ {
				var d Decoder
				first, dropped1 := d.Decode(raw[:cut])
				second, dropped2 := d.Decode(raw[cut:])

				assert.Equal(t, tt.input, first+second, "cut at %d", cut)
				assert.Zero(t, dropped1+dropped2)
				assert.Zero(t, d.Pending())
			}
		})
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	input := "aé€\U0001F600z"
	var d Decoder
	var sb strings.Builder
	for _, b := range []byte(input) {
		text, dropped := d.Decode([]byte{b})
		assert.Zero(t, dropped)
		sb.WriteString(text)
		assert.LessOrEqual(t, d.Pending(), maxCarry)
	}
	assert.Equal(t, input, sb.String())
}

func TestDecoderDropsMalformedRun(t *testing.T) {
	var d Decoder
	text, dropped := d.Decode([]byte{0x80, 0x81, 0x82, 0x83, 0x84})
	assert.Empty(t, text)
	assert.Equal(t, 5, dropped)
	assert.Zero(t, d.Pending(), "malformed bytes must not be carried over")

	text, dropped = d.Decode([]byte("next"))
	assert.Equal(t, "next", text)
	assert.Zero(t, dropped)
}

func TestDecoderCarryStaysBounded(t *testing.T) {
	var d Decoder
	for i := 0; i < 1000; i++ {
		_, _ = d.Decode([]byte{0xBF, 0xF0})
		assert.LessOrEqual(t, d.Pending(), maxCarry)
	}
}

func TestDecoderKeepsTextAroundInvalidBytes(t *testing.T) {
	var d Decoder
	text, dropped := d.Decode([]byte("ab\xffcd\xc3(ef"))
	assert.Equal(t, "abcd(ef", text)
	assert.Equal(t, 2, dropped)
}

func TestDecoderBrokenLeadFollowedByASCII(t *testing.T) {
	var d Decoder
	text, dropped := d.Decode([]byte("x\xe2\x82"))
	assert.Equal(t, "x", text)
	assert.Zero(t, dropped)
	assert.Equal(t, 2, d.Pending())

	// The held-back lead bytes cannot be completed by ASCII.
	text, dropped = d.Decode([]byte("y"))
	assert.Equal(t, "y", text)
	assert.Equal(t, 2, dropped)
	assert.Zero(t, d.Pending())
}

func TestDecoderKeepsReplacementCharacter(t *testing.T) {
	var d Decoder
	text, dropped := d.Decode([]byte("a�b\xff"))
	assert.Equal(t, "a�b", text)
	assert.Equal(t, 1, dropped)
}

func TestDecoderReset(t *testing.T) {
	var d Decoder
	_, _ = d.Decode([]byte{0xE2, 0x82})
	assert.Equal(t, 2, d.Reset())
	assert.Zero(t, d.Pending())
}
