package units

import (
	"encoding/json"
	"fmt"
)

var units = []byte("BKMGT")

// Bytes is an amount of memory, rendered in a human readable way.
type Bytes struct {
	Bytes int64
}

func (b Bytes) String() string {
	return PrettyBytes(b.Bytes)
}

// MarshalJSON keeps the exact value next to its readable form.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Bytes  int64  `json:"bytes"`
		Pretty string `json:"pretty"`
	}{b.Bytes, b.String()})
}

func PrettyBytes[T int | int64 | uint64](b T) string {
	base := 1024.0
	i := 0
	v := float64(b)

	for v >= base && i < len(units)-1 {
		v /= base
		i++
	}

	if i == 0 {
		return fmt.Sprintf("%dB", b)
	}
	return fmt.Sprintf("%.2f%ciB", v, units[i])
}
