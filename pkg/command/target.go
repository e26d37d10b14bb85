package command

import (
	"fmt"
	"strings"
)

// Target identifies the radio parameter a command refers to. The meaning of
// a command's payload fields depends only on its target.
type Target int32

const (
	TargetNull Target = iota

	RXTuneFreq
	RXFEFreq
	RXRetuneFreq
	RXLO3Freq
	RXCenterFreq
	TXTuneFreq
	TXFEFreq
	TXRetuneFreq
	RXSampRate
	TXSampRate
	RXAnt
	TXAnt
	RXRFGain
	TXRFGain
	RXAFGain
	RXAFSidetoneGain
	TXAFGain
	TXState
	RXState
	TXBeacon
	TXCWText
	TXCWSpeed
	TXCWFlushText
	TXCWMarker
	TXCWEmpty
	RXMode
	TXMode
	RXBW
	RBW
	SpecCenterFreq
	SpecAvgWindow
	SpecUpdateRate
	SpecDims
	SpecStep
	SpecBuckets
	ClockSource
	LOCheck
	LOOffset
	RXAFFilter
	RXAFFilterShape
	GPSUTC
	GPSLatLon
	GPSLock
	SDRVersion
	DbgRep
	HWMBRep
	Stop
	TVRTLOEnable
	TVRTLODisable
	TVRTLOConfig
	StatusMessage
	TXAudioIn
	TXAudioFiltEna
	RXGainRange
	TXGainRange
	RXAntName
	TXAntName
	ModSelEntry
	AFFiltEntry
	InitSetupComplete
	CWCharSent
	RFRecordStart
	RFRecordStop
	NBFMSquelch
	AudioBufSize
	AudioSampleRate

	numTargets
)

var targetNames = [numTargets]string{
	TargetNull:        "NULL_CMD",
	RXTuneFreq:        "RX_TUNE_FREQ",
	RXFEFreq:          "RX_FE_FREQ",
	RXRetuneFreq:      "RX_RETUNE_FREQ",
	RXLO3Freq:         "RX_LO3_FREQ",
	RXCenterFreq:      "RX_CENTER_FREQ",
	TXTuneFreq:        "TX_TUNE_FREQ",
	TXFEFreq:          "TX_FE_FREQ",
	TXRetuneFreq:      "TX_RETUNE_FREQ",
	RXSampRate:        "RX_SAMP_RATE",
	TXSampRate:        "TX_SAMP_RATE",
	RXAnt:             "RX_ANT",
	TXAnt:             "TX_ANT",
	RXRFGain:          "RX_RF_GAIN",
	TXRFGain:          "TX_RF_GAIN",
	RXAFGain:          "RX_AF_GAIN",
	RXAFSidetoneGain:  "RX_AF_SIDETONE_GAIN",
	TXAFGain:          "TX_AF_GAIN",
	TXState:           "TX_STATE",
	RXState:           "RX_STATE",
	TXBeacon:          "TX_BEACON",
	TXCWText:          "TX_CW_TEXT",
	TXCWSpeed:         "TX_CW_SPEED",
	TXCWFlushText:     "TX_CW_FLUSHTEXT",
	TXCWMarker:        "TX_CW_MARKER",
	TXCWEmpty:         "TX_CW_EMPTY",
	RXMode:            "RX_MODE",
	TXMode:            "TX_MODE",
	RXBW:              "RX_BW",
	RBW:               "RBW",
	SpecCenterFreq:    "SPEC_CENTER_FREQ",
	SpecAvgWindow:     "SPEC_AVG_WINDOW",
	SpecUpdateRate:    "SPEC_UPDATE_RATE",
	SpecDims:          "SPEC_DIMS",
	SpecStep:          "SPEC_STEP",
	SpecBuckets:       "SPEC_BUCKETS",
	ClockSource:       "CLOCK_SOURCE",
	LOCheck:           "LO_CHECK",
	LOOffset:          "LO_OFFSET",
	RXAFFilter:        "RX_AF_FILTER",
	RXAFFilterShape:   "RX_AF_FILTER_SHAPE",
	GPSUTC:            "GPS_UTC",
	GPSLatLon:         "GPS_LATLON",
	GPSLock:           "GPS_LOCK",
	SDRVersion:        "SDR_VERSION",
	DbgRep:            "DBG_REP",
	HWMBRep:           "HWMB_REP",
	Stop:              "STOP",
	TVRTLOEnable:      "TVRT_LO_ENABLE",
	TVRTLODisable:     "TVRT_LO_DISABLE",
	TVRTLOConfig:      "TVRT_LO_CONFIG",
	StatusMessage:     "STATUS_MESSAGE",
	TXAudioIn:         "TX_AUDIO_IN",
	TXAudioFiltEna:    "TX_AUDIO_FILT_ENA",
	RXGainRange:       "RX_GAIN_RANGE",
	TXGainRange:       "TX_GAIN_RANGE",
	RXAntName:         "RX_ANT_NAME",
	TXAntName:         "TX_ANT_NAME",
	ModSelEntry:       "MOD_SEL_ENTRY",
	AFFiltEntry:       "AF_FILT_ENTRY",
	InitSetupComplete: "INIT_SETUP_COMPLETE",
	CWCharSent:        "CW_CHAR_SENT",
	RFRecordStart:     "RF_RECORD_START",
	RFRecordStop:      "RF_RECORD_STOP",
	NBFMSquelch:       "NBFM_SQUELCH",
	AudioBufSize:      "AUDIO_BUF_SIZE",
	AudioSampleRate:   "AUDIO_SAMPLE_RATE",
}

var targetsByName = func() map[string]Target {
	ret := make(map[string]Target, numTargets)
	for t, name := range targetNames {
		ret[name] = Target(t)
	}
	return ret
}()

func (t Target) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TARGET(%d)", int32(t))
	}
	return targetNames[t]
}

func (t Target) Valid() bool {
	return t >= 0 && t < numTargets
}

// ParseTarget looks a target up by its wire name, case-insensitively.
func ParseTarget(name string) (Target, error) {
	t, ok := targetsByName[strings.ToUpper(name)]
	if !ok {
		return TargetNull, fmt.Errorf("unknown target %q", name)
	}
	return t, nil
}

// Targets returns every defined target in enumeration order.
func Targets() []Target {
	ret := make([]Target, 0, numTargets)
	for t := Target(0); t < numTargets; t++ {
		ret = append(ret, t)
	}
	return ret
}
