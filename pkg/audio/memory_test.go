package audio

import (
	"errors"
	"reflect"
	"testing"
)

func TestMemoryOverrun(t *testing.T) {
	m := NewMemory(8000, 4, 2)
	blk := []float32{1, 2, 3, 4}

	for i := 0; i < 2; i++ {
		if err := m.Send(blk); err != nil {
			t.Fatalf("Send() #%d = %v", i, err)
		}
	}
	if err := m.Send(blk); !errors.Is(err, ErrOverrun) {
		t.Fatalf("Send() on a full queue = %v, want ErrOverrun", err)
	}

	m.Flush()
	if m.Queued() != 0 {
		t.Errorf("Queued() after Flush = %d", m.Queued())
	}
	if err := m.Send(blk); err != nil {
		t.Errorf("Send() after Flush = %v", err)
	}
	if n := m.Drain(); n != 1 {
		t.Errorf("Drain() = %d", n)
	}
	if !reflect.DeepEqual(m.Played(), blk) {
		t.Errorf("Played() = %v", m.Played())
	}
	overruns, flushes := m.Stats()
	if overruns != 1 || flushes != 1 {
		t.Errorf("Stats() = %d, %d", overruns, flushes)
	}
}

func TestMemoryRecv(t *testing.T) {
	m := NewMemory(8000, 3, 2)
	buf := make([]float32, 3)
	if err := m.Recv(buf); !errors.Is(err, ErrUnderrun) {
		t.Fatalf("Recv() with nothing fed = %v", err)
	}

	m.Feed([]float32{1, 2, 3, 4})
	want := [][]float32{{1, 2, 3}, {4, 0, 0}}
	for _, w := range want {
		if err := m.Recv(buf); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(buf, w) {
			t.Errorf("Recv() = %v, want %v", buf, w)
		}
	}
}

func TestBlockSizeChecked(t *testing.T) {
	devices := []Device{NewMemory(8000, 4, 1), &Null{Rate: 8000, Block: 4}}
	for _, d := range devices {
		if err := d.Send(make([]float32, 3)); !errors.Is(err, ErrBlockSize) {
			t.Errorf("%T.Send() = %v", d, err)
		}
		if err := d.Recv(make([]float32, 5)); !errors.Is(err, ErrBlockSize) {
			t.Errorf("%T.Recv() = %v", d, err)
		}
	}
}

func TestClosed(t *testing.T) {
	m := NewMemory(8000, 1, 1)
	m.Close()
	if err := m.Send([]float32{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close = %v", err)
	}
}
