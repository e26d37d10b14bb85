package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// NopWriteAPI discards every point. It is the default metrics sink when no
// influx server is configured.
type NopWriteAPI struct{}

func (m *NopWriteAPI) WriteRecord(line string) {}

func (m *NopWriteAPI) WritePoint(point *write.Point) {}

func (m *NopWriteAPI) Flush() {}

func (m *NopWriteAPI) Close() {}

func (m *NopWriteAPI) Errors() <-chan error { return nil }

// RecordingWriteAPI keeps every point written, for tests.
type RecordingWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *RecordingWriteAPI) WriteRecord(line string) {}

func (m *RecordingWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

func (m *RecordingWriteAPI) Flush() {}

func (m *RecordingWriteAPI) Close() {}

func (m *RecordingWriteAPI) Errors() <-chan error { return nil }

// Points returns the names of the points written so far.
func (m *RecordingWriteAPI) Points() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ret := make([]string, len(m.points))
	for i, p := range m.points {
		ret[i] = p.Name()
	}
	return ret
}
