package stream

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/norasector/rigcore/pkg/audio"
	"github.com/norasector/rigcore/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}
	return out
}

func TestEncoderFrames(t *testing.T) {
	enc, err := NewEncoder(48000, talkGroup(3, 42))
	require.NoError(t, err)

	// 50 ms in, one 40 ms frame out, 10 ms left over.
	frames, err := enc.Write(tone(2400))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 40000, frames[0].SampleLengthMicroseconds)
	assert.Equal(t, 42, frames[0].TalkGroup.ID)
	assert.Equal(t, 3, frames[0].TalkGroup.SystemID)
	assert.NotEmpty(t, frames[0].Audio.Data)

	frame, err := enc.Flush()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 10000, frame.SampleLengthMicroseconds)
	assert.Equal(t, 1, frame.Audio.SegmentNumber)

	// Less than the shortest frame is dropped.
	_, err = enc.Write(tone(50))
	require.NoError(t, err)
	frame, err = enc.Flush()
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestOutputSendsUDP(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()
	port := listener.LocalAddr().(*net.UDPAddr).Port

	metrics := &util.RecordingWriteAPI{}
	out, err := NewOutput([]Destination{{Host: "127.0.0.1", Port: port}}, 48000, 2400,
		WithInfluxDB(metrics), WithTalkGroup(1, 7))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.Start(ctx)

	require.NoError(t, out.Send(tone(2400)))

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 65536)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Greater(t, n, 2)
	length := binary.LittleEndian.Uint16(buf[:2])
	assert.Equal(t, n-2, int(length))

	require.Eventually(t, func() bool {
		for _, p := range metrics.Points() {
			if p == "opus.sent_frame" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestOutputDevice(t *testing.T) {
	_, err := NewOutput(nil, 48000, 10)
	assert.Error(t, err)

	out, err := NewOutput([]Destination{{Host: "127.0.0.1", Port: 9}}, 48000, 10)
	require.NoError(t, err)

	buf := []float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	require.NoError(t, out.Recv(buf))
	assert.Equal(t, make([]float32, 10), buf)

	var sendErr error
	for i := 0; i < receiveChannels+1; i++ {
		sendErr = out.Send(buf)
	}
	assert.ErrorIs(t, sendErr, audio.ErrOverrun)
	require.NoError(t, out.Flush())
	assert.NoError(t, out.Send(buf))
	assert.ErrorIs(t, out.Send(buf[:3]), audio.ErrBlockSize)
}
