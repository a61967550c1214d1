package ledger

import (
	"fmt"
	"math"
)

// Micros is an amount in millionths of a US dollar. Accounting is done in
// Micros so that cost always equals reads times unit price exactly.
type Micros int64

func FromUSD(usd float64) Micros {
	return Micros(math.Round(usd * 1e6))
}

func (m Micros) USD() float64 {
	return float64(m) / 1e6
}

func (m Micros) String() string {
	return fmt.Sprintf("$%.3f", m.USD())
}

// scale returns m*f rounded to the nearest micro.
func (m Micros) scale(f float64) Micros {
	return Micros(math.Round(float64(m) * f))
}
