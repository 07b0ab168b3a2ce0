package mqtt

import "testing"

func pushN(rb *ringBuffer, from, n int) {
	for i := from; i < from+n; i++ {
		rb.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
}

func payloads(msgs []pendingMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(4)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int
		want     []byte
	}{
		{"partial", 10, 5, []byte{0, 1, 2, 3, 4}},
		{"full", 4, 4, []byte{0, 1, 2, 3}},
		{"overflow keeps newest", 5, 8, []byte{3, 4, 5, 6, 7}},
		{"wraps twice", 3, 7, []byte{4, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity)
			pushN(rb, 0, tt.pushed)

			if rb.len() != len(tt.want) {
				t.Errorf("len: got %d, want %d", rb.len(), len(tt.want))
			}
			got := payloads(rb.drainAll())
			if string(got) != string(tt.want) {
				t.Errorf("drain: got %v, want %v", got, tt.want)
			}
			if rb.len() != 0 {
				t.Errorf("expected empty after drain, got %d", rb.len())
			}
		})
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	pushN(rb, 0, 5)
	rb.drainAll()

	pushN(rb, 10, 2)
	got := payloads(rb.drainAll())
	if string(got) != string([]byte{10, 11}) {
		t.Errorf("second cycle: got %v", got)
	}
	if rb.dropped != 0 {
		t.Errorf("dropped counter should reset on drain, got %d", rb.dropped)
	}
}

func TestRingBufferKeepsMessageFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(pendingMsg{topic: "a/system", payload: []byte("x"), qos: 1, retained: true})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	m := got[0]
	if m.topic != "a/system" || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("message fields not preserved: %+v", m)
	}
}
