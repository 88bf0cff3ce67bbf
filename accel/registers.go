package accel

import "github.com/mklimuk/sensorhub/odr"

// KX122 register map (Kionix KX122-1037 datasheet, section 8)
const (
	regXOutL  = 0x06
	regXOutH  = 0x07
	regYOutL  = 0x08
	regYOutH  = 0x09
	regZOutL  = 0x0A
	regZOutH  = 0x0B
	regCOTR   = 0x0C
	regWhoAmI = 0x0F
	regINTREL = 0x17
	regCNTL1  = 0x18
	regCNTL2  = 0x19
	regODCNTL = 0x1B
	regINC1   = 0x1C
	regINC4   = 0x1F
)

const whoAmIKX122 = 0x1B

// command test response values
const (
	cotrDefault = 0x55
	cotrActive  = 0xAA
)

// CNTL1 bits
const (
	cntl1PC1    = 0x80
	cntl1RES    = 0x40
	cntl1DRDYE  = 0x20
	cntl1GSEL8G = 0x10
	cntl1GSEL4G = 0x08
	cntl1GSEL2G = 0x00
)

// CNTL2 bits
const cntl2COTC = 0x40

// INC1 bits: physical interrupt pin 1. IEA1 clear keeps the pin active low;
// IEL1 set pulses it, clear latches it until INT_REL is read.
const (
	inc1IEN1 = 0x20
	inc1IEL1 = 0x08
)

// INC4: data ready routed to pin 1
const inc4DRDYI1 = 0x10

// ODCNTL OSA[3:0] output data rate codes
const (
	osa25   = 0x01
	osa50   = 0x02
	osa100  = 0x03
	osa200  = 0x04
	osa400  = 0x05
	osa800  = 0x06
	osa1600 = 0x07
	osa3200 = 0x0C
	osa6400 = 0x0D
	osa12k8 = 0x0E
)

// KX122Rates lists the integer output data rates the driver exposes.
var KX122Rates = odr.Table{
	{Rate: 25, Code: osa25},
	{Rate: 50, Code: osa50},
	{Rate: 100, Code: osa100},
	{Rate: 200, Code: osa200},
	{Rate: 400, Code: osa400},
	{Rate: 800, Code: osa800},
	{Rate: 1600, Code: osa1600},
	{Rate: 3200, Code: osa3200},
	{Rate: 6400, Code: osa6400},
	{Rate: 12800, Code: osa12k8},
}

// Range is the full-scale acceleration setting.
type Range int

const (
	Range2G Range = 2
	Range4G Range = 4
	Range8G Range = 8
)

func (r Range) gsel() byte {
	switch r {
	case Range2G:
		return cntl1GSEL2G
	case Range4G:
		return cntl1GSEL4G
	default:
		return cntl1GSEL8G
	}
}

// CountsPerG is the 16-bit resolution divider for the range.
func (r Range) CountsPerG() float64 {
	switch r {
	case Range2G:
		return 32768 / 2
	case Range4G:
		return 32768 / 4
	default:
		return 32768 / 8
	}
}
