package errors

import (
	"fmt"
	"testing"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := NewValidationError("spot", -1.0, "must be positive")
	wrapped := fmt.Errorf("pricing: %w", err)

	if !Is(wrapped, ErrInputValidation) {
		t.Fatal("expected wrapped validation error to match ErrInputValidation")
	}

	var ve *ValidationError
	if !As(wrapped, &ve) {
		t.Fatal("expected As to find *ValidationError")
	}
	if ve.Field != "spot" {
		t.Errorf("Field = %q, want spot", ve.Field)
	}
	want := "validation error: spot (-1): must be positive"
	if ve.Error() != want {
		t.Errorf("Error() = %q, want %q", ve.Error(), want)
	}
}

func TestStrategyErrorUnwrap(t *testing.T) {
	err := NewStrategyError("iron_condor", "strikes out of order", ErrInputValidation)
	if !Is(err, ErrInputValidation) {
		t.Error("expected StrategyError to unwrap to its cause")
	}
	if NewStrategyError("x", "y", nil).Error() != "strategy error [x]: y" {
		t.Error("unexpected message for StrategyError without cause")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	if got := Wrapf(ErrExpired, "symbol %s", "SPY"); !Is(got, ErrExpired) {
		t.Error("Wrapf should preserve the chain")
	}
}
