package creation

import "testing"

func TestOverallProgressValues(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  float64
	}{
		{"idle", Idle(), 0},
		{"mounting", Mounting(), 0.10},
		{"formatting", Formatting(), 0.05},
		{"copying start", Copying(0, "", 0, 100), 0.10},
		{"copying half", Copying(0.5, "sources/install.wim", 50, 100), 0.475},
		{"copying capped", Copying(0.99, "", 99, 100), 0.10 + 0.75*0.99},
		{"splitting", Splitting(), 0.90},
		{"finalizing", Finalizing(), 0.95},
		{"completed", Completed(), 1.0},
		{"failed", Failed("failed to format the drive"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverallProgress(tt.state)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("OverallProgress(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// Formatting's weight (0.05) sits below Mounting's (0.10), so the full
// successful sequence carries exactly one known dip at the Mounting ->
// Formatting step. Everywhere else progress only moves forward.
func TestOverallProgressSuccessSequence(t *testing.T) {
	sequence := []State{
		Idle(),
		Mounting(),
		Formatting(),
		Copying(0.01, "", 0, 1000),
		Copying(0.4, "boot.wim", 400, 1000),
		Copying(0.99, "", 1000, 1000),
		Finalizing(),
		Completed(),
	}

	prev := -1.0
	for i, s := range sequence {
		got := OverallProgress(s)
		if s.Phase == PhaseFormatting {
			if got >= prev {
				t.Fatalf("expected the formatting dip at step %d: %v >= %v", i, got, prev)
			}
		} else if got < prev {
			t.Fatalf("progress decreased at step %d (%s): %v < %v", i, s.Phase, got, prev)
		}
		prev = got
	}
}

func TestTerminal(t *testing.T) {
	if !Completed().Terminal() || !Failed("x").Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if Idle().Terminal() || Mounting().Terminal() || Copying(0.5, "", 0, 0).Terminal() {
		t.Error("non-terminal states reported terminal")
	}
}

func TestPhaseString(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseMounting, PhaseFormatting, PhaseCopying,
		PhaseSplitting, PhaseFinalizing, PhaseCompleted, PhaseFailed}
	seen := make(map[string]bool)
	for _, p := range phases {
		s := p.String()
		if s == "unknown" || seen[s] {
			t.Errorf("phase %d has bad or duplicate name %q", p, s)
		}
		seen[s] = true
	}
}
