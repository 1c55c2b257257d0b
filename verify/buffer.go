package verify

import "sync"

const defaultCaptureOutputBytes = 256 * 1024

// headBuffer keeps the first N bytes written to it. Capture tools print the
// stream description before any per-frame progress, so the head is the part
// worth parsing. Writes past the limit are counted and dropped.
type headBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newHeadBuffer(maxBytes int) *headBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultCaptureOutputBytes
	}
	return &headBuffer{maxBytes: maxBytes}
}

func (b *headBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if room := b.maxBytes - len(b.contents); room > 0 {
		if len(p) > room {
			b.contents = append(b.contents, p[:room]...)
		} else {
			b.contents = append(b.contents, p...)
		}
	}
	return len(p), nil
}

func (b *headBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

func (b *headBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
