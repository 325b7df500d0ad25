package engine

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Multiplexed stream framing: each frame starts with an 8-byte header,
// [stream type][3 zero bytes][4-byte big-endian payload length],
// followed by the payload. Stream type 2 is stderr, 1 is stdout.
const (
	headerSize    = 8
	streamStdout  = 1
	streamStderr  = 2
	lengthOffset  = 4
	maxCarrySlack = 64 * 1024

	// maxFrameSize bounds a single frame's payload. A length prefix
	// past it means a corrupt header; without the bound the demuxer
	// would buffer forever waiting for a frame that never completes.
	maxFrameSize = 16 << 20
)

// Demuxer splits a container's multiplexed output stream into stdout
// and stderr. It is an io.Writer so it can sit on the receiving end of
// an io.Copy from the attach connection.
//
// Frames arrive split across arbitrary network chunk boundaries, so the
// demuxer buffers input and only ever emits complete frames; whatever
// is left over after a Write is carried into the next one.
type Demuxer struct {
	stdout io.Writer
	stderr io.Writer
	buf    []byte
}

// NewDemuxer creates a demuxer writing decoded payloads to the given sinks
func NewDemuxer(stdout, stderr io.Writer) *Demuxer {
	return &Demuxer{stdout: stdout, stderr: stderr}
}

// Write feeds raw multiplexed bytes into the demuxer
func (d *Demuxer) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)

	for {
		if len(d.buf) < headerSize {
			break
		}
		payloadLen := int(binary.BigEndian.Uint32(d.buf[lengthOffset:headerSize]))
		if payloadLen > maxFrameSize {
			return len(p), fmt.Errorf("frame length %d exceeds %d byte limit", payloadLen, maxFrameSize)
		}
		frameLen := headerSize + payloadLen
		if len(d.buf) < frameLen {
			break
		}

		payload := d.buf[headerSize:frameLen]
		var sink io.Writer
		switch d.buf[0] {
		case streamStderr:
			sink = d.stderr
		default:
			// stdout, plus anything unexpected so no output is lost
			sink = d.stdout
		}
		if len(payload) > 0 {
			if _, err := sink.Write(payload); err != nil {
				return len(p), err
			}
		}
		d.buf = d.buf[frameLen:]
	}

	// Keep the carry buffer from pinning a large backing array once the
	// parsed prefix has been consumed.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf)-len(d.buf) > maxCarrySlack {
		carry := make([]byte, len(d.buf))
		copy(carry, d.buf)
		d.buf = carry
	}

	return len(p), nil
}

// Pending reports how many buffered bytes are waiting for the rest of
// their frame. A non-zero value after the stream ends means the stream
// was truncated mid-frame.
func (d *Demuxer) Pending() int {
	return len(d.buf)
}
