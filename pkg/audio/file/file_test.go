package file

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Len()
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.b.Bytes()...)
}

func TestWritesBlocks(t *testing.T) {
	var out syncBuffer
	d := New(&out, 8000, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	for i := 0; i < sampleBufferLength; i++ {
		require.NoError(t, d.Send([]float32{float32(i), 0, 0, 0}))
	}
	require.Eventually(t, func() bool { return out.Len() == sampleBufferLength*16 }, time.Second, time.Millisecond)

	got := make([]float32, sampleBufferLength*4)
	require.NoError(t, binary.Read(bytes.NewReader(out.Bytes()), binary.LittleEndian, got))
	for i := 0; i < sampleBufferLength; i++ {
		assert.Equal(t, float32(i), got[i*4])
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPartialBlocksAreWrittenAfterTimeout(t *testing.T) {
	var out syncBuffer
	d := New(&out, 8000, 80)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	require.NoError(t, d.Send(make([]float32, 80)))
	require.Eventually(t, func() bool { return out.Len() == 320 }, 2*time.Second, time.Millisecond)
}

func TestOverrun(t *testing.T) {
	d := New(&syncBuffer{}, 8000, 1)
	var err error
	for i := 0; i < sampleBufferLength*4 && err == nil; i++ {
		err = d.Send([]float32{0})
	}
	assert.True(t, errors.Is(err, audio.ErrOverrun))

	require.NoError(t, d.Flush())
	assert.NoError(t, d.Send([]float32{0}))
}

func TestCapture(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, binary.Write(&src, binary.LittleEndian, []float32{1, 2, 3, 4, 5}))

	d := New(&syncBuffer{}, 8000, 2, WithSource(&src))
	buf := make([]float32, 2)
	assert.ErrorIs(t, d.Recv(buf), audio.ErrUnderrun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Start(ctx)

	for _, want := range [][]float32{{1, 2}, {3, 4}} {
		require.Eventually(t, func() bool { return d.Recv(buf) == nil }, time.Second, time.Millisecond)
		assert.Equal(t, want, buf)
	}
	// The odd trailing sample never makes a block.
	time.Sleep(10 * time.Millisecond)
	assert.ErrorIs(t, d.Recv(buf), audio.ErrUnderrun)
}
