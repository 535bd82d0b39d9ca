package shepherd

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/peterje/microterm/internal/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeControl(&buf, Request{ID: "r1", Command: cmdResize, SessionID: "s", Cols: 80, Rows: 24}))

	frameType, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameControl, frameType)

	var req Request
	require.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, Request{ID: "r1", Command: cmdResize, SessionID: "s", Cols: 80, Rows: 24}, req)
	assert.Zero(t, buf.Len())
}

func TestOutputFrameKeepsText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutputFrame(&buf, "session-1", "héllo \U0001F600"))

	frameType, payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, frameOutput, frameType)

	id, text, err := parseOutputPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)
	assert.Equal(t, "héllo \U0001F600", text)
}

func TestOutputFrameRejectsLongID(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, writeOutputFrame(&buf, string(make([]byte, 256)), "x"))
}

func TestReadFrameRejectsBadLengths(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(0)))
	_, _, err := readFrame(&buf)
	assert.Error(t, err)

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(maxFrameSize+1)))
	_, _, err = readFrame(&buf)
	assert.Error(t, err)
}

func TestParseOutputPayloadShort(t *testing.T) {
	_, _, err := parseOutputPayload(nil)
	assert.Error(t, err)
	_, _, err = parseOutputPayload([]byte{5, 'a'})
	assert.Error(t, err)
}

func TestErrorMappingSurvivesTheWire(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "validation",
			err:  pty.ValidateSize(0, 24),
			check: func(t *testing.T, err error) {
				var verr *pty.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, "cols", verr.Field)
				assert.Equal(t, 0, verr.Value)
				assert.Equal(t, pty.MinCols, verr.Min)
				assert.Equal(t, pty.MaxCols, verr.Max)
			},
		},
		{
			name: "not found",
			err:  fmt.Errorf("%w: abc", pty.ErrSessionNotFound),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, pty.ErrSessionNotFound)
				assert.Contains(t, err.Error(), "abc")
			},
		},
		{
			name: "spawn",
			err:  &pty.SpawnError{Op: "/bin/nope", Err: errors.New("no such file")},
			check: func(t *testing.T, err error) {
				var serr *pty.SpawnError
				require.True(t, errors.As(err, &serr))
				assert.Contains(t, err.Error(), "no such file")
			},
		},
		{
			name: "io",
			err:  errors.New("input/output error"),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "input/output error")
				assert.NotErrorIs(t, err, pty.ErrSessionNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeControl(&buf, errorResponse("r9", tt.err)))
			_, payload, err := readFrame(&buf)
			require.NoError(t, err)

			var resp Response
			require.NoError(t, json.Unmarshal(payload, &resp))
			assert.Equal(t, "r9", resp.ID)
			tt.check(t, responseError(resp, "abc"))
		})
	}
}

func TestResponseErrorOnSuccess(t *testing.T) {
	assert.NoError(t, responseError(Response{Event: evtOK}, "x"))
}
