package processor

import (
	"math"
	"testing"

	"github.com/norasector/rigcore/pkg/dsp/demodulators/quad"
	"github.com/norasector/rigcore/pkg/dsp/mixer"
)

func TestChain(t *testing.T) {
	const rate = 8000
	p := NewProcessor("test", "Input", nil)
	p.AddBlock(NewDSPWorkerCC("shift", "Shift", rate, rate, mixer.NewOscillator(rate, 1000)))
	p.AddBlock(NewDSPWorkerCF("demod", "Demod", rate, rate, quad.MakeQuadDemod(rate/(2*math.Pi))))
	p.AddBlock(NewDSPWorkerFF("half", "Half", rate, rate, FFFunc(func(in, out []float32) {
		for i, v := range in {
			out[i] = v / 2
		}
	})))

	in := make([]complex64, 400)
	for i := range in {
		in[i] = 1
	}
	metrics := map[string]interface{}{}
	out, err := p.ProcessComplexToFloat(in, metrics)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d", len(out))
	}
	// A DC input shifted to 1 kHz demodulates to 1000, halved.
	for i := 1; i < len(out); i++ {
		if math.Abs(float64(out[i])-500) > 0.5 {
			t.Fatalf("out[%d] = %v, want 500", i, out[i])
		}
	}
	for _, name := range []string{"shift_duration", "demod_duration", "half_duration"} {
		if _, ok := metrics[name]; !ok {
			t.Errorf("metric %s missing", name)
		}
	}
}

func TestInitializeChecks(t *testing.T) {
	re := NewDSPWorkerCF("real", "Real", 100, 100, CFFunc(func(v complex64) float32 { return real(v) }))
	tests := []struct {
		name   string
		blocks []*DSPWorker
	}{
		{"empty", nil},
		{"type mismatch", []*DSPWorker{
			re,
			NewDSPWorkerCC("cc", "CC", 100, 100, mixer.NewOscillator(100, 0)),
		}},
		{"rate mismatch", []*DSPWorker{
			re,
			NewDSPWorkerFF("ff", "FF", 200, 200, FFFunc(func(in, out []float32) {})),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(tt.name, "in", nil)
			for _, b := range tt.blocks {
				p.AddBlock(b)
			}
			if err := p.Initialize(); err == nil {
				t.Error("Initialize() succeeded")
			}
		})
	}
}

func TestWrongInputOrOutput(t *testing.T) {
	p := NewProcessor("p", "in", nil)
	p.AddBlock(NewDSPWorkerCF("real", "Real", 100, 100, CFFunc(func(v complex64) float32 { return real(v) })))

	if _, err := p.ProcessComplex(make([]complex64, 4), nil); err == nil {
		t.Error("complex output from a float chain")
	}
	if _, err := p.ProcessFloat(make([]float32, 4), nil); err == nil {
		t.Error("float input to a complex chain")
	}
	out, err := p.ProcessComplexToFloat([]complex64{1, 2i, 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 0, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}
