// Package reassemble joins MQTT data events that deliver one logical
// message in several fragments — notably firmware chunks — into a single
// complete message before it reaches the router.
package reassemble

import (
	"errors"
	"log/slog"
)

// MaxMessageSize bounds the buffer a single in-progress reassembly may
// allocate. A declared total length beyond this is treated the way the
// source treats a malloc failure: the reassembly aborts.
const MaxMessageSize = 4 << 20 // 4 MiB

// ErrTooLarge is returned when a fragment declares a total length beyond
// MaxMessageSize.
var ErrTooLarge = errors.New("reassemble: declared total length too large")

// Reassembler holds at most one in-progress multi-fragment message.
// Concurrent multi-fragment streams on different topics are not supported,
// matching the source.
type Reassembler struct {
	topic   string
	buf     []byte
	total   int
	written int
	active  bool
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// Feed processes one incoming fragment event. complete is true exactly when
// payload holds a fully assembled message ready for dispatch; violation is
// true when the fragment was dropped as a protocol violation (wrong topic
// mid-stream) and should only be logged, never escalated.
func (r *Reassembler) Feed(topic string, fragment []byte, offset, total int) (payload []byte, complete bool, violation bool, err error) {
	switch {
	case offset == 0 && total == len(fragment):
		// single-fragment message: emit immediately, buffer untouched.
		return fragment, true, false, nil

	case offset == 0 && total > len(fragment):
		if total > MaxMessageSize {
			r.reset()
			return nil, false, false, ErrTooLarge
		}
		if r.active {
			slog.Warn("reassemble: discarding incomplete message, new one started",
				"topic", r.topic)
		}
		r.topic = topic
		r.total = total
		r.buf = make([]byte, total)
		r.written = copy(r.buf, fragment)
		r.active = true
		return nil, false, false, nil

	case offset > 0:
		if !r.active || topic != r.topic {
			slog.Warn("reassemble: fragment for unknown/mismatched message dropped",
				"topic", topic, "offset", offset)
			return nil, false, true, nil
		}
		end := offset + len(fragment)
		if end > len(r.buf) {
			slog.Warn("reassemble: fragment overruns declared total length, aborting",
				"topic", topic, "offset", offset, "total", r.total)
			r.reset()
			return nil, false, true, nil
		}
		copy(r.buf[offset:end], fragment)
		if end > r.written {
			r.written = end
		}
		if r.written == r.total {
			complete := r.buf
			r.reset()
			return complete, true, false, nil
		}
		return nil, false, false, nil

	default:
		// offset == 0 && total < len(fragment) is nonsensical input.
		slog.Warn("reassemble: malformed fragment dropped", "topic", topic, "total", total, "fragment", len(fragment))
		return nil, false, true, nil
	}
}

// Reset discards any in-progress reassembly. Called on disconnect.
func (r *Reassembler) Reset() {
	r.reset()
}

func (r *Reassembler) reset() {
	r.topic = ""
	r.buf = nil
	r.total = 0
	r.written = 0
	r.active = false
}
