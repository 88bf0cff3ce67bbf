package acoustic

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mklimuk/sensorhub"
)

const (
	// FrameSize is the fixed window read from the link per sample.
	FrameSize = 6
	// SampleSize is the encoded size of one sample in Read buffers.
	SampleSize = 4

	frameSentinel = '\n'
)

// ParseFrame decodes one window. The window must be exactly FrameSize bytes
// and end with a newline; the bytes before it hold an ASCII decimal literal.
// Like atof, the longest numeric prefix is used and a payload with no number
// in it decodes as 0.
func ParseFrame(window []byte) (float32, error) {
	if len(window) != FrameSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", sensorhub.ErrMalformedFrame, len(window), FrameSize)
	}
	if window[FrameSize-1] != frameSentinel {
		return 0, fmt.Errorf("%w: missing newline terminator", sensorhub.ErrMalformedFrame)
	}
	payload := string(window[:FrameSize-1])
	if i := strings.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return float32(atof(payload)), nil
}

// atof mirrors the C library: leading white space is skipped and trailing
// garbage ignored.
func atof(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	if strings.EqualFold(strings.TrimLeft(s[:end], "+-"), "nan") {
		return math.NaN()
	}
	// the prefix is well formed, so only a range error is possible and the
	// value is then ±Inf or 0 as in C
	v, _ := strconv.ParseFloat(s[:end], 64)
	return v
}

// numericPrefix returns the length of the longest prefix of s that is a
// decimal floating point literal, an infinity or a NaN.
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	rest := strings.ToLower(s[i:])
	switch {
	case strings.HasPrefix(rest, "infinity"):
		return i + len("infinity")
	case strings.HasPrefix(rest, "inf"), strings.HasPrefix(rest, "nan"):
		return i + 3
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	// an exponent only counts when at least one digit follows it
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// EncodeSample writes v as a little-endian IEEE-754 float32.
func EncodeSample(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

// DecodeSample is the inverse of EncodeSample.
func DecodeSample(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
