package mqtt

// queuedMsg is a serialized message waiting for the broker to come back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while disconnected.
// Oldest messages are overwritten when full. Not safe for concurrent use.
type ringBuffer struct {
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]queuedMsg, capacity)}
}

// push stores msg and reports whether an older message was overwritten.
func (r *ringBuffer) push(msg queuedMsg) bool {
	overwrote := r.count == len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if overwrote {
		r.dropped++
	} else {
		r.count++
	}
	return overwrote
}

// drain returns queued messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []queuedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]queuedMsg, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
