package agent

import "testing"

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		expected bool
	}{
		{StateNotRunning, false},
		{StateIdle, false},
		{StateBusy, false},
		{StateZombie, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State(%q).IsTerminal() = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	t.Parallel()

	for _, s := range AllStates() {
		if !s.IsValid() {
			t.Errorf("State(%q).IsValid() = false, want true", s)
		}
	}
	if State("RUNNING").IsValid() {
		t.Error(`State("RUNNING").IsValid() = true, want false`)
	}
	if got := StateBusy.String(); got != "BUSY" {
		t.Errorf("StateBusy.String() = %q, want BUSY", got)
	}
}
