package mqtt

import "log"

// pendingMsg is a serialized message held until the broker is reachable.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest messages published while disconnected,
// overwriting the oldest once full. Not safe for concurrent use.
type ringBuffer struct {
	buf     []pendingMsg
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]pendingMsg, capacity)}
}

func (r *ringBuffer) push(msg pendingMsg) {
	if r.count == len(r.buf) {
		if r.dropped == 0 {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", len(r.buf))
		}
		r.dropped++
	} else {
		r.count++
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []pendingMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]pendingMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while disconnected", r.dropped)
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
