package diffusion

import (
	"errors"
	"testing"
)

func TestParseScheduler_AllSupportedNames(t *testing.T) {
	tests := []struct {
		name string
		want Scheduler
	}{
		{"DDIM", SchedulerDDIM},
		{"DPMSolverMultistep", SchedulerDPMSolverMultistep},
		{"HeunDiscrete", SchedulerHeunDiscrete},
		{"KarrasDPM", SchedulerKarrasDPM},
		{"K_EULER_ANCESTRAL", SchedulerEulerAncestral},
		{"K_EULER", SchedulerEuler},
		{"PNDM", SchedulerPNDM},
		{"DPM++2MSDE", SchedulerDPM2MSDE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheduler(tt.name)
			if err != nil {
				t.Fatalf("expected no error for %q, got: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduler(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseScheduler_UnknownName(t *testing.T) {
	tests := []string{
		"",
		"EulerDiscrete",
		"k_euler",
		"DDIM ",
		"DPM++2M SDE Karras",
	}

	for _, name := range tests {
		_, err := ParseScheduler(name)
		if err == nil {
			t.Errorf("expected error for %q", name)
			continue
		}
		if !errors.Is(err, ErrUnknownScheduler) {
			t.Errorf("expected ErrUnknownScheduler for %q, got: %v", name, err)
		}
	}
}

func TestScheduler_StringRoundTrip(t *testing.T) {
	for s := SchedulerDDIM; s <= SchedulerDPM2MSDE; s++ {
		got, err := ParseScheduler(s.String())
		if err != nil {
			t.Fatalf("round trip failed for %v: %v", s, err)
		}
		if got != s {
			t.Errorf("round trip of %v gave %v", s, got)
		}
	}
}

func TestScheduler_Valid(t *testing.T) {
	if !SchedulerDDIM.Valid() {
		t.Error("DDIM should be valid")
	}
	if Scheduler(99).Valid() {
		t.Error("Scheduler(99) should not be valid")
	}
	if Scheduler(-1).Valid() {
		t.Error("Scheduler(-1) should not be valid")
	}
}

func TestSchedulerNames_Count(t *testing.T) {
	names := SchedulerNames()
	if len(names) != 8 {
		t.Errorf("expected 8 scheduler names, got %d: %v", len(names), names)
	}
}

func TestScheduler_Config_TrailingSpacingAlways(t *testing.T) {
	for s := SchedulerDDIM; s <= SchedulerDPM2MSDE; s++ {
		cfg := s.config()
		if !cfg.trailingSpacing {
			t.Errorf("%v should use trailing timestep spacing", s)
		}
	}
}

func TestScheduler_Config_KarrasDPM(t *testing.T) {
	karras := SchedulerKarrasDPM.config()
	multistep := SchedulerDPMSolverMultistep.config()

	if karras.method != multistep.method {
		t.Errorf("KarrasDPM should share its sampler with DPMSolverMultistep")
	}
	if karras.sigmas != sigmaScheduleKarras {
		t.Error("KarrasDPM should select the Karras sigma schedule")
	}
	if multistep.sigmas != sigmaScheduleDefault {
		t.Error("DPMSolverMultistep should keep the default sigma schedule")
	}
}
