// Package stream sends received audio over UDP as length-prefixed
// protobuf-encoded opus frames, so remote listeners can follow the
// receiver without a sound card on the radio host.
package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
)

const (
	receiveChannels = 8
	numSenders      = 2
)

type Destination struct {
	Host string
	Port int
}

// Output is a playback-only audio.Device. Recv always yields silence.
type Output struct {
	dests      []Destination
	sampleRate int
	blockSize  int
	talkGroup  types.TalkGroup
	recvChan   chan []float32
	opusChan   chan *types.TaggedAudioFrameOpus
	metrics    api.WriteAPI
	logger     zerolog.Logger
}

type OutputOption func(o *Output) error

func WithInfluxDB(writeAPI api.WriteAPI) OutputOption {
	return func(o *Output) error {
		o.metrics = writeAPI
		return nil
	}
}

func WithLogger(logger zerolog.Logger) OutputOption {
	return func(o *Output) error {
		o.logger = logger
		return nil
	}
}

// WithTalkGroup tags every frame with a system and talk group, which
// listeners use to pick streams apart.
func WithTalkGroup(systemID, id int) OutputOption {
	return func(o *Output) error {
		o.talkGroup = talkGroup(systemID, id)
		return nil
	}
}

func NewOutput(dests []Destination, sampleRate, blockSize int, opts ...OutputOption) (*Output, error) {
	o := &Output{
		dests:      dests,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		recvChan:   make(chan []float32, receiveChannels),
		opusChan:   make(chan *types.TaggedAudioFrameOpus, receiveChannels),
		metrics:    &util.NopWriteAPI{},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if len(dests) == 0 {
		return nil, fmt.Errorf("stream output needs at least one destination")
	}
	return o, nil
}

func (o *Output) SampleRate() int { return o.sampleRate }
func (o *Output) BlockSize() int  { return o.blockSize }

func (o *Output) Send(buf []float32) error {
	if len(buf) != o.blockSize {
		return audio.ErrBlockSize
	}
	select {
	case o.recvChan <- append([]float32(nil), buf...):
		return nil
	default:
		return audio.ErrOverrun
	}
}

func (o *Output) Recv(buf []float32) error {
	if len(buf) != o.blockSize {
		return audio.ErrBlockSize
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (o *Output) Flush() error {
	for {
		select {
		case <-o.recvChan:
		default:
			return nil
		}
	}
}

func (o *Output) Close() error { return nil }

func (o *Output) resolve() ([]*net.UDPAddr, error) {
	destAddrs := make([]*net.UDPAddr, 0, len(o.dests))
	for _, dest := range o.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		o.logger.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("stream output starting")
	}
	return destAddrs, nil
}

// encodeFrame serializes f as a little-endian uint16 length followed by
// the protobuf message.
func encodeFrame(f *types.TaggedAudioFrameOpus) ([]byte, error) {
	encoded, err := proto.Marshal(f.ToProtobuf())
	if err != nil {
		return nil, fmt.Errorf("marshaling protobuf: %w", err)
	}
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("frame of %d bytes too long", len(encoded))
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

func (o *Output) Start(ctx context.Context) error {
	destAddrs, err := o.resolve()
	if err != nil {
		return err
	}
	enc, err := NewEncoder(o.sampleRate, o.talkGroup)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Microsecond * time.Duration(usPerFrame) * 3 / 2):
				frame, err := enc.Flush()
				if err != nil {
					return err
				}
				if frame == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case o.opusChan <- frame:
				}
			case samples := <-o.recvChan:
				frames, err := enc.Write(samples)
				if err != nil {
					return err
				}
				for _, frame := range frames {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case o.opusChan <- frame:
					}
				}
			}
		}
	})

	for i := 0; i < numSenders; i++ {
		eg.Go(func() error {
			conn, err := net.ListenUDP("udp", nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case output := <-o.opusChan:
					msg, err := encodeFrame(output)
					if err != nil {
						o.logger.Warn().Err(err).Msg("error encoding frame")
						continue
					}

					success := true
					var bytesWritten int
					for _, destAddr := range destAddrs {
						bytesWritten, err = conn.WriteToUDP(msg, destAddr)
						if err != nil {
							o.logger.Error().Err(err).Msg("error writing")
							success = false
						}
					}

					go o.metrics.WritePoint(influxdb2.NewPoint("opus.sent_frame",
						map[string]string{
							"channel_type": "rx_audio",
							"system_id":    strconv.Itoa(output.TalkGroup.SystemID),
							"tgid":         strconv.Itoa(output.TalkGroup.ID),
						},
						map[string]interface{}{
							"bytes_written":  bytesWritten,
							"frame_length":   len(output.Audio.Data),
							"encoded_length": len(msg),
							"sent":           boolInt(success),
							"dropped":        boolInt(!success),
						}, time.Now()))
				}
			}
		})
	}

	return eg.Wait()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
