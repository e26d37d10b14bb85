// Package baseband holds the two audio-side stages: BaseBandRX turns RF
// blocks from the RX mailbox into demodulated audio, and BaseBandTX turns
// microphone audio or the CW keying envelope into RF blocks on the TX
// mailbox.
package baseband

import (
	"fmt"

	"github.com/norasector/rigcore/pkg/dsp/resampler"
)

// Rates fixes the RF and audio sample rates and the span of one resampler
// block. Every stage that moves samples between the two domains derives its
// block sizes from the same Rates.
type Rates struct {
	RF            int
	Audio         int
	BlockDuration float64
}

func (r Rates) validate() error {
	if r.RF <= 0 || r.Audio <= 0 {
		return fmt.Errorf("bad sample rates rf=%d audio=%d", r.RF, r.Audio)
	}
	if r.BlockDuration <= 0 {
		return fmt.Errorf("bad block duration %v", r.BlockDuration)
	}
	return nil
}

// Down builds an RF to audio resampler.
func (r Rates) Down() (*resampler.Resampler, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return resampler.New(r.RF, r.Audio, r.BlockDuration)
}

// Up builds an audio to RF resampler.
func (r Rates) Up() (*resampler.Resampler, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return resampler.New(r.Audio, r.RF, r.BlockDuration)
}

// Sizes is the block geometry every stage agrees on.
type Sizes struct {
	// RXRF is the length of an RX mailbox block; RXAudio is the audio it
	// becomes, and the audio device block size.
	RXRF, RXAudio int
	// TXAudio is the length of one modulator input block, including CW
	// envelope blocks; TXRF is the TX mailbox block it becomes.
	TXAudio, TXRF int
}

func (r Rates) Sizes() (Sizes, error) {
	down, err := r.Down()
	if err != nil {
		return Sizes{}, err
	}
	up, err := r.Up()
	if err != nil {
		return Sizes{}, err
	}
	return Sizes{
		RXRF:    down.InputBufferSize(),
		RXAudio: down.OutputBufferSize(),
		TXAudio: up.InputBufferSize(),
		TXRF:    up.OutputBufferSize(),
	}, nil
}
