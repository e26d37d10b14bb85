// Package file plays audio as raw little-endian float32 samples to a
// writer, and optionally captures from a reader in the same format. It
// suits piping to and from tools such as sox and aplay.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/norasector/rigcore/pkg/audio"
	"golang.org/x/sync/errgroup"
)

// sampleBufferLength is the number of blocks gathered per write.
const sampleBufferLength int = 8

type Device struct {
	dest       io.Writer
	src        io.Reader
	sampleRate int
	blockSize  int
	prime      bool

	outChan chan []float32
	inChan  chan []float32
	flush   chan struct{}
}

type Option func(d *Device)

// WithSource captures from r.
func WithSource(r io.Reader) Option {
	return func(d *Device) {
		d.src = r
	}
}

// WithPrime writes one second of silence before the first block so the
// consumer starts with some slack.
func WithPrime() Option {
	return func(d *Device) {
		d.prime = true
	}
}

func New(dest io.Writer, sampleRate, blockSize int, opts ...Option) *Device {
	d := &Device{
		dest:       dest,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		outChan:    make(chan []float32, sampleBufferLength*2),
		inChan:     make(chan []float32, sampleBufferLength),
		flush:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) SampleRate() int { return d.sampleRate }
func (d *Device) BlockSize() int  { return d.blockSize }

func (d *Device) Send(buf []float32) error {
	if len(buf) != d.blockSize {
		return audio.ErrBlockSize
	}
	select {
	case d.outChan <- append([]float32(nil), buf...):
		return nil
	default:
		return audio.ErrOverrun
	}
}

func (d *Device) Recv(buf []float32) error {
	if len(buf) != d.blockSize {
		return audio.ErrBlockSize
	}
	select {
	case in := <-d.inChan:
		copy(buf, in)
		return nil
	default:
		return audio.ErrUnderrun
	}
}

// Flush drops queued blocks, including any gathered but not yet written.
func (d *Device) Flush() error {
	for {
		select {
		case <-d.outChan:
		default:
			select {
			case d.flush <- struct{}{}:
			default:
			}
			return nil
		}
	}
}

func (d *Device) Close() error {
	if c, ok := d.dest.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Device) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if d.prime {
		if _, err := d.dest.Write(make([]byte, d.sampleRate*4)); err != nil {
			return err
		}
	}

	blockTime := time.Duration(float64(d.blockSize) / float64(d.sampleRate) * float64(time.Second))

	eg.Go(func() error {
		b := bytes.NewBuffer(make([]byte, 0, d.blockSize*4*sampleBufferLength+1))
		bufNum := 0

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case <-d.flush:
				b.Reset()
				bufNum = 0

			case <-time.After(blockTime * time.Duration(sampleBufferLength-bufNum)):
				if bufNum > 0 {
					if _, err := b.WriteTo(d.dest); err != nil {
						return err
					}
					b.Reset()
					bufNum = 0
				}

			case outBuf := <-d.outChan:
				if err := binary.Write(b, binary.LittleEndian, outBuf); err != nil {
					return err
				}

				bufNum++
				if bufNum == sampleBufferLength {
					if _, err := b.WriteTo(d.dest); err != nil {
						return err
					}
					b.Reset()
					bufNum = 0
				}
			}
		}
	})

	if d.src != nil {
		eg.Go(func() error {
			r := bufio.NewReader(d.src)
			for {
				in := make([]float32, d.blockSize)
				if err := binary.Read(r, binary.LittleEndian, in); err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
						return nil
					}
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case d.inChan <- in:
				}
			}
		})
	}

	return eg.Wait()
}
