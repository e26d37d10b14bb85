// Package audio defines the audio device the baseband stages play to and
// record from, plus in-process devices for tests and headless runs.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrUnderrun means Recv had no captured block ready.
	ErrUnderrun = errors.New("audio underrun")
	// ErrOverrun means Send found the playback queue full.
	ErrOverrun = errors.New("audio overrun")
	ErrClosed  = errors.New("audio device closed")
	// ErrBlockSize means a buffer was not exactly BlockSize samples.
	ErrBlockSize = errors.New("audio buffer has the wrong length")
)

// Device moves fixed-size blocks of mono float32 samples at a fixed rate.
// Send and Recv never wait longer than one block; a device that cannot
// take or supply a block reports ErrOverrun or ErrUnderrun and the caller
// recovers locally.
type Device interface {
	SampleRate() int
	BlockSize() int
	// Send queues one block for playback.
	Send(buf []float32) error
	// Recv fills buf with one captured block.
	Recv(buf []float32) error
	// Flush drops every queued playback block.
	Flush() error
	Close() error
}

// Runner is implemented by devices with background work. The runtime
// runs it alongside the stages until ctx ends.
type Runner interface {
	Start(ctx context.Context) error
}
