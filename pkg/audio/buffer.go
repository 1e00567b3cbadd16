package audio

// RollingBuffer keeps the most recent captured audio as contiguous PCM bytes.
// Appending past the capacity drops the oldest frames. It is not safe for
// concurrent use; the conversation loop owns it.
type RollingBuffer struct {
	data     []byte
	capacity int // in frames
}

// NewRollingBuffer creates a buffer holding at most capacity frames.
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingBuffer{capacity: capacity}
}

// Append adds a frame and drops from the front until the capacity holds.
func (b *RollingBuffer) Append(f Frame) {
	b.data = append(b.data, f.Bytes()...)
	b.enforce()
}

// SetCapacity changes the bound, trimming immediately if the buffer is now
// over it.
func (b *RollingBuffer) SetCapacity(frames int) {
	if frames < 1 {
		frames = 1
	}
	b.capacity = frames
	b.enforce()
}

// Capacity returns the current bound in frames.
func (b *RollingBuffer) Capacity() int {
	return b.capacity
}

// KeepTail discards everything but the last n frames.
func (b *RollingBuffer) KeepTail(n int) {
	keep := n * FrameBytes
	if keep < 0 {
		keep = 0
	}
	if len(b.data) <= keep {
		return
	}
	b.data = append([]byte(nil), b.data[len(b.data)-keep:]...)
}

// Reset empties the buffer.
func (b *RollingBuffer) Reset() {
	b.data = nil
}

// Frames returns the number of whole frames held.
func (b *RollingBuffer) Frames() int {
	return len(b.data) / FrameBytes
}

// Len returns the number of bytes held.
func (b *RollingBuffer) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the buffered PCM.
func (b *RollingBuffer) Bytes() []byte {
	return append([]byte(nil), b.data...)
}

func (b *RollingBuffer) enforce() {
	limit := b.capacity * FrameBytes
	if len(b.data) <= limit {
		return
	}
	// append copies only the live window when it next grows
	b.data = b.data[len(b.data)-limit:]
}
