package audio

import (
	"sync"
)

// Memory is a Device backed by bounded in-memory queues. Played blocks are
// kept for inspection; captured blocks are supplied with Feed.
type Memory struct {
	rate, block int
	depth       int

	mu       sync.Mutex
	queue    [][]float32
	played   []float32
	maxKeep  int
	mic      [][]float32
	closed   bool
	flushes  int
	overruns int
}

// NewMemory creates a device whose playback queue holds depth blocks.
// Blocks drain into the played record as soon as Drain is called.
func NewMemory(rate, block, depth int) *Memory {
	return &Memory{
		rate:    rate,
		block:   block,
		depth:   depth,
		maxKeep: rate * 60,
	}
}

func (m *Memory) SampleRate() int { return m.rate }
func (m *Memory) BlockSize() int  { return m.block }

func (m *Memory) Send(buf []float32) error {
	if len(buf) != m.block {
		return ErrBlockSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(m.queue) >= m.depth {
		m.overruns++
		return ErrOverrun
	}
	m.queue = append(m.queue, append([]float32(nil), buf...))
	return nil
}

func (m *Memory) Recv(buf []float32) error {
	if len(buf) != m.block {
		return ErrBlockSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(m.mic) == 0 {
		return ErrUnderrun
	}
	copy(buf, m.mic[0])
	m.mic = m.mic[1:]
	return nil
}

func (m *Memory) Flush() error {
	m.mu.Lock()
	m.queue = m.queue[:0]
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Feed queues captured samples, split into blocks. A short tail is padded
// with zeros.
func (m *Memory) Feed(samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(samples) > 0 {
		blk := make([]float32, m.block)
		n := copy(blk, samples)
		m.mic = append(m.mic, blk)
		samples = samples[n:]
	}
}

// Captured is the number of fed blocks not yet read with Recv.
func (m *Memory) Captured() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mic)
}

// Drain moves every queued block to the played record, as a sound card
// consuming them would, and returns how many blocks it moved.
func (m *Memory) Drain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	for _, b := range m.queue {
		m.played = append(m.played, b...)
	}
	if over := len(m.played) - m.maxKeep; over > 0 {
		m.played = append(m.played[:0], m.played[over:]...)
	}
	m.queue = m.queue[:0]
	return n
}

// Played returns a copy of everything drained so far.
func (m *Memory) Played() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.played...)
}

// Queued is the number of blocks waiting to be drained.
func (m *Memory) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Stats reports how often the queue overflowed and was flushed.
func (m *Memory) Stats() (overruns, flushes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overruns, m.flushes
}

// Null discards playback and captures silence.
type Null struct {
	Rate, Block int
}

func (n *Null) SampleRate() int { return n.Rate }
func (n *Null) BlockSize() int  { return n.Block }

func (n *Null) Send(buf []float32) error {
	if len(buf) != n.Block {
		return ErrBlockSize
	}
	return nil
}

func (n *Null) Recv(buf []float32) error {
	if len(buf) != n.Block {
		return ErrBlockSize
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (n *Null) Flush() error { return nil }
func (n *Null) Close() error { return nil }
