package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Bound is a strategy metric that is either a finite amount or unbounded in
// one direction. Unbounded values never carry an IEEE infinity.
type Bound struct {
	Value     float64
	Unbounded bool
	Sign      int
}

// Finite returns a finite bound.
func Finite(v float64) Bound {
	return Bound{Value: v}
}

// Unlimited returns an unbounded value; sign < 0 means unbounded below.
func Unlimited(sign int) Bound {
	if sign < 0 {
		return Bound{Unbounded: true, Sign: -1}
	}
	return Bound{Unbounded: true, Sign: 1}
}

// IsFinite reports whether b holds a finite amount.
func (b Bound) IsFinite() bool {
	return !b.Unbounded
}

// Float returns the finite value, or ±Inf for unbounded values. Intended for
// ordering only; summaries must keep the Bound.
func (b Bound) Float() float64 {
	if b.Unbounded {
		return math.Inf(b.Sign)
	}
	return b.Value
}

// Less orders bounds with -unbounded < finite < +unbounded.
func (b Bound) Less(o Bound) bool {
	return b.Float() < o.Float()
}

func (b Bound) String() string {
	if b.Unbounded {
		if b.Sign < 0 {
			return "-Unlimited"
		}
		return "Unlimited"
	}
	return fmt.Sprintf("%.2f", b.Value)
}

// MarshalJSON encodes finite values as numbers and unbounded values as
// "unbounded" or "-unbounded".
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.Unbounded {
		if b.Sign < 0 {
			return json.Marshal("-unbounded")
		}
		return json.Marshal("unbounded")
	}
	return json.Marshal(b.Value)
}

// UnmarshalJSON accepts the encodings produced by MarshalJSON.
func (b *Bound) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "unbounded", "+unbounded":
			*b = Unlimited(1)
			return nil
		case "-unbounded":
			*b = Unlimited(-1)
			return nil
		default:
			return fmt.Errorf("invalid bound %q", s)
		}
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = Finite(v)
	return nil
}
