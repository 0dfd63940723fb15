package model

import "testing"

func TestReservationStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ReservationStatus
		to      ReservationStatus
		allowed bool
	}{
		{ReservationActive, ReservationFulfilled, true},
		{ReservationActive, ReservationCancelled, true},
		{ReservationActive, ReservationExpired, true},
		// Terminal states never revert or move.
		{ReservationFulfilled, ReservationActive, false},
		{ReservationFulfilled, ReservationCancelled, false},
		{ReservationCancelled, ReservationActive, false},
		{ReservationCancelled, ReservationExpired, false},
		{ReservationExpired, ReservationActive, false},
		{ReservationExpired, ReservationFulfilled, false},
		// Self-transitions and unknown states.
		{ReservationActive, ReservationActive, false},
		{ReservationActive, ReservationStatus("bogus"), false},
		{ReservationStatus("bogus"), ReservationCancelled, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransitionTo(tt.to)
		if got != tt.allowed {
			t.Errorf("CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestReservationStatusTerminal(t *testing.T) {
	if ReservationActive.Terminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []ReservationStatus{ReservationFulfilled, ReservationCancelled, ReservationExpired} {
		if !s.Terminal() {
			t.Errorf("%q must be terminal", s)
		}
	}
	if ReservationStatus("bogus").Terminal() {
		t.Error("unknown status must not be terminal")
	}
}
