package stream

import (
	"time"

	"github.com/hraban/opus"
	"github.com/norasector/turbine-common/types"
)

const usPerFrame int = 40e3

// Shorter frame lengths opus accepts, used to flush a partial frame.
var validUsRates []int = []int{2.5e3, 5e3, 10e3, 20e3}

// Encoder packs a mono sample stream into 40 ms opus frames tagged with
// a talk group.
type Encoder struct {
	sampleRate    int
	talkGroup     types.TalkGroup
	encBuf        [4096]byte
	inBuf         []float32
	encoder       *opus.Encoder
	segmentNumber int
}

func NewEncoder(sampleRate int, talkGroup types.TalkGroup) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}

	if err := enc.SetPacketLossPerc(20); err != nil {
		return nil, err
	}
	if err := enc.SetBitrateToAuto(); err != nil {
		return nil, err
	}
	return &Encoder{
		sampleRate: sampleRate,
		talkGroup:  talkGroup,
		inBuf:      make([]float32, 0, sampleRate*usPerFrame/1e6*3),
		encoder:    enc,
	}, nil
}

func (o *Encoder) samplesPerFrame() int {
	return o.sampleRate * usPerFrame / 1e6
}

// Write appends samples and returns every complete frame.
func (o *Encoder) Write(samples []float32) ([]*types.TaggedAudioFrameOpus, error) {
	o.inBuf = append(o.inBuf, samples...)

	var frames []*types.TaggedAudioFrameOpus
	for len(o.inBuf) >= o.samplesPerFrame() {
		frame, err := o.encode(o.samplesPerFrame())
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Flush encodes what is buffered in the longest shorter frame that fits
// and drops any remainder too short for a frame. It returns nil when
// nothing could be encoded.
func (o *Encoder) Flush() (*types.TaggedAudioFrameOpus, error) {
	for j := len(validUsRates) - 1; j >= 0; j-- {
		n := validUsRates[j] * o.sampleRate / 1e6
		if n <= len(o.inBuf) {
			frame, err := o.encode(n)
			o.inBuf = o.inBuf[:0]
			return frame, err
		}
	}
	o.inBuf = o.inBuf[:0]
	return nil, nil
}

// Reset drops buffered samples.
func (o *Encoder) Reset() {
	o.inBuf = o.inBuf[:0]
}

func (o *Encoder) encode(n int) (*types.TaggedAudioFrameOpus, error) {
	bytesEncoded, err := o.encoder.EncodeFloat32(o.inBuf[:n], o.encBuf[:])
	if err != nil {
		return nil, err
	}

	// Move leftover samples to the beginning of the input buffer.
	rest := copy(o.inBuf, o.inBuf[n:])
	o.inBuf = o.inBuf[:rest]

	ret := make([]byte, bytesEncoded)
	copy(ret, o.encBuf[:bytesEncoded])

	tg := o.talkGroup
	frame := &types.TaggedAudioFrameOpus{
		Audio: &types.SegmentBinaryBytes{
			SegmentNumber: o.segmentNumber,
			Data:          ret,
		},
		TalkGroup:                &tg,
		SampleLengthMicroseconds: n * 1e6 / o.sampleRate,
		Timestamp:                time.Now().UTC(),
	}
	o.segmentNumber++
	return frame, nil
}

func talkGroup(systemID, id int) types.TalkGroup {
	return types.TalkGroup{SystemID: systemID, ID: id}
}
