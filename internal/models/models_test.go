package models

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBoundJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Bound
		want string
	}{
		{"finite", Finite(12.5), "12.5"},
		{"unbounded above", Unlimited(1), `"unbounded"`},
		{"unbounded below", Unlimited(-3), `"-unbounded"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal = %s, want %s", data, tt.want)
			}
			var back Bound
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back != tt.in {
				t.Errorf("round trip = %+v, want %+v", back, tt.in)
			}
		})
	}
}

func TestBoundOrdering(t *testing.T) {
	if !Unlimited(-1).Less(Finite(-1e12)) {
		t.Error("-unbounded should sort below any finite value")
	}
	if !Finite(1e12).Less(Unlimited(1)) {
		t.Error("+unbounded should sort above any finite value")
	}
	if Unlimited(1).String() != "Unlimited" {
		t.Errorf("String() = %q", Unlimited(1).String())
	}
	if !math.IsInf(Unlimited(1).Float(), 1) {
		t.Error("Float() of +unbounded should be +Inf")
	}
}

func TestLegPnL(t *testing.T) {
	legs := []OptionLeg{
		{Kind: KindStock, Quantity: 100, Premium: 100},
		{Kind: KindCall, Strike: 105, Quantity: -1, Premium: 2},
	}

	// Above the strike the short call caps the stock gain.
	if got, want := LegsPnL(legs, ContractMultiplier, 120), 100*5.0+200; math.Abs(got-want) > 1e-9 {
		t.Errorf("PnL(120) = %v, want %v", got, want)
	}
	if got, want := LegsPnL(legs, ContractMultiplier, 90), -1000.0+200; math.Abs(got-want) > 1e-9 {
		t.Errorf("PnL(90) = %v, want %v", got, want)
	}
	if got, want := LegsCost(legs, ContractMultiplier), 10000.0-200; math.Abs(got-want) > 1e-9 {
		t.Errorf("Cost = %v, want %v", got, want)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"CALL": KindCall, "p": KindPut, " stock ": KindStock} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("future"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
