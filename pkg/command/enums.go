package command

// Modulation values carried by RX_MODE and TX_MODE.
type Modulation int32

const (
	ModLSB Modulation = iota
	ModUSB
	ModCWUpper
	ModCWLower
	ModAM
	ModWBFM
	ModNBFM
)

var modulationNames = map[Modulation]string{
	ModLSB:     "LSB",
	ModUSB:     "USB",
	ModCWUpper: "CW_U",
	ModCWLower: "CW_L",
	ModAM:      "AM",
	ModWBFM:    "WBFM",
	ModNBFM:    "NBFM",
}

func (m Modulation) String() string {
	if s, ok := modulationNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsCW reports whether m keys a carrier from the CW generator.
func (m Modulation) IsCW() bool {
	return m == ModCWUpper || m == ModCWLower
}

// Modulations lists every mode in menu order.
func Modulations() []Modulation {
	return []Modulation{ModLSB, ModUSB, ModCWUpper, ModCWLower, ModAM, ModWBFM, ModNBFM}
}

// TX_STATE values.
const (
	StateRXReady int32 = 0
	StateTXReady int32 = 1
	StateRXOn    int32 = 2
	StateTXOn    int32 = 3
)

// CLOCK_SOURCE bits.
const (
	ClockInternal int32 = 0
	ClockLocked   int32 = 1 << 1
	ClockExternal int32 = 1 << 2
)

// AFFilter values carried by RX_AF_FILTER, narrowest first.
type AFFilter int32

const (
	AFFilter100 AFFilter = iota
	AFFilter500
	AFFilter2000
	AFFilter6000
	AFFilterPass
)

var afFilterNames = map[AFFilter]string{
	AFFilter100:  "BW_100",
	AFFilter500:  "BW_500",
	AFFilter2000: "BW_2000",
	AFFilter6000: "BW_6000",
	AFFilterPass: "BW_PASS",
}

func (f AFFilter) String() string {
	if s, ok := afFilterNames[f]; ok {
		return s
	}
	return "UNKNOWN"
}

// AFFilters lists every audio filter in menu order.
func AFFilters() []AFFilter {
	return []AFFilter{AFFilter100, AFFilter500, AFFilter2000, AFFilter6000, AFFilterPass}
}
