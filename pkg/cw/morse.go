// Package cw turns text into a Morse keying envelope for the transmitter.
package cw

import (
	"math"
	"unicode"
)

const (
	MinWPM = 1
	MaxWPM = 50
	// edgeTime is the rise and fall time of every element.
	edgeTime = 0.005
)

var morse = map[rune]string{
	'a': ".-", 'b': "-...", 'c': "-.-.", 'd': "-..", 'e': ".",
	'f': "..-.", 'g': "--.", 'h': "....", 'i': "..", 'j': ".---",
	'k': "-.-", 'l': ".-..", 'm': "--", 'n': "-.", 'o': "---",
	'p': ".--.", 'q': "--.-", 'r': ".-.", 's': "...", 't': "-",
	'u': "..-", 'v': "...-", 'w': ".--", 'x': "-..-", 'y': "-.--",
	'z': "--..",
	'0': "-----", '1': ".----", '2': "..---", '3': "...--", '4': "....-",
	'5': ".....", '6': "-....", '7': "--...", '8': "---..", '9': "----.",
	'.': ".-.-.-", ',': "--..--", '?': "..--..", '-': "-...-", '/': "-..-.",
}

// Code returns the dots and dashes for c, ignoring case.
func Code(c rune) (string, bool) {
	s, ok := morse[unicode.ToLower(c)]
	return s, ok
}

// Keyer holds the element envelopes for one speed. Every element ends with
// the one-dot gap that separates it from the next.
type Keyer struct {
	rate float64
	wpm  int

	dit, dah  []float32
	charSpace []float32
	wordSpace []float32

	// digraph suppresses the gap after the next character so two
	// characters run together as one prosign.
	digraph bool
}

func NewKeyer(sampleRate float64, wpm int) *Keyer {
	k := &Keyer{rate: sampleRate}
	k.SetSpeed(wpm)
	return k
}

func (k *Keyer) WPM() int { return k.wpm }

// DotSamples is the length of one dot at the current speed.
func (k *Keyer) DotSamples() int {
	return int(math.Round(k.rate * 1.2 / float64(k.wpm)))
}

// SetSpeed rebuilds the elements for wpm, clamped to MinWPM..MaxWPM.
func (k *Keyer) SetSpeed(wpm int) {
	if wpm < MinWPM {
		wpm = MinWPM
	}
	if wpm > MaxWPM {
		wpm = MaxWPM
	}
	k.wpm = wpm

	dot := k.DotSamples()
	edge := int(math.Round(edgeTime * k.rate))
	if 2*edge > dot {
		edge = dot / 2
	}
	k.dit = element(dot, dot, edge)
	k.dah = element(3*dot, dot, edge)
	k.charSpace = make([]float32, 2*dot)
	k.wordSpace = make([]float32, 6*dot)
}

// element is a keyed run of on samples with raised cosine edges, followed
// by gap samples of silence.
func element(on, gap, edge int) []float32 {
	ret := make([]float32, on+gap)
	for i := 0; i < on; i++ {
		ret[i] = 1
	}
	for i := 0; i < edge; i++ {
		v := float32(0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(edge))))
		ret[i] = v
		ret[on-1-i] = v
	}
	return ret
}

// Envelope appends the keying for c to out. The second result is false for
// characters with no Morse code, which produce nothing.
func (k *Keyer) Envelope(out []float32, c rune) ([]float32, bool) {
	switch c {
	case '_':
		k.digraph = true
		return out, false
	case ' ':
		k.digraph = false
		return append(out, k.wordSpace...), true
	}

	code, ok := Code(c)
	if !ok {
		return out, false
	}
	for _, e := range code {
		if e == '.' {
			out = append(out, k.dit...)
		} else {
			out = append(out, k.dah...)
		}
	}
	if k.digraph {
		k.digraph = false
	} else {
		out = append(out, k.charSpace...)
	}
	return out, true
}
