package diffusion

import "fmt"

// Scheduler selects the sampling algorithm used to denoise across inference
// steps. The set is closed: exactly eight identifiers are supported, and
// anything else is rejected at the boundary before any device work begins.
type Scheduler int

const (
	SchedulerDDIM Scheduler = iota
	SchedulerDPMSolverMultistep
	SchedulerHeunDiscrete
	SchedulerKarrasDPM
	SchedulerEulerAncestral
	SchedulerEuler
	SchedulerPNDM
	SchedulerDPM2MSDE
)

// DefaultScheduler is used when a request does not choose one.
const DefaultScheduler = SchedulerEuler

// schedulerNames maps each variant to its user-facing identifier.
var schedulerNames = map[Scheduler]string{
	SchedulerDDIM:               "DDIM",
	SchedulerDPMSolverMultistep: "DPMSolverMultistep",
	SchedulerHeunDiscrete:       "HeunDiscrete",
	SchedulerKarrasDPM:          "KarrasDPM",
	SchedulerEulerAncestral:     "K_EULER_ANCESTRAL",
	SchedulerEuler:              "K_EULER",
	SchedulerPNDM:               "PNDM",
	SchedulerDPM2MSDE:           "DPM++2MSDE",
}

// String returns the user-facing scheduler identifier.
func (s Scheduler) String() string {
	if name, ok := schedulerNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scheduler(%d)", int(s))
}

// Valid reports whether s is one of the supported variants.
func (s Scheduler) Valid() bool {
	_, ok := schedulerNames[s]
	return ok
}

// ParseScheduler resolves a user-facing identifier to its variant.
// Unrecognized names return ErrUnknownScheduler.
func ParseScheduler(name string) (Scheduler, error) {
	for s, n := range schedulerNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownScheduler, name, SchedulerNames())
}

// SchedulerNames returns the supported identifiers in declaration order.
func SchedulerNames() []string {
	names := make([]string, 0, len(schedulerNames))
	for s := SchedulerDDIM; s <= SchedulerDPM2MSDE; s++ {
		names = append(names, schedulerNames[s])
	}
	return names
}

// sigmaSchedule selects how noise levels are spaced across steps.
type sigmaSchedule int

const (
	sigmaScheduleDefault sigmaSchedule = iota
	sigmaScheduleKarras
)

// samplerConfig is the native sampler configuration a scheduler resolves to.
// Timestep spacing is always "trailing" regardless of the sampler chosen;
// that is what makes few-step Lightning inference work.
type samplerConfig struct {
	method          sampleMethod
	sigmas          sigmaSchedule
	trailingSpacing bool
}

// sampleMethod identifies a native sampler algorithm.
type sampleMethod int

const (
	sampleMethodDDIM sampleMethod = iota
	sampleMethodDPMPP2M
	sampleMethodHeun
	sampleMethodEulerAncestral
	sampleMethodEuler
	sampleMethodPNDM
	sampleMethodDPM2SAncestral
)

// config resolves the scheduler to its native sampler configuration.
// KarrasDPM is a derived variant: the multistep DPM sampler with a Karras
// sigma schedule, not an independent algorithm.
func (s Scheduler) config() samplerConfig {
	cfg := samplerConfig{trailingSpacing: true}

	switch s {
	case SchedulerDDIM:
		cfg.method = sampleMethodDDIM
	case SchedulerDPMSolverMultistep:
		cfg.method = sampleMethodDPMPP2M
	case SchedulerHeunDiscrete:
		cfg.method = sampleMethodHeun
	case SchedulerKarrasDPM:
		cfg.method = sampleMethodDPMPP2M
		cfg.sigmas = sigmaScheduleKarras
	case SchedulerEulerAncestral:
		cfg.method = sampleMethodEulerAncestral
	case SchedulerEuler:
		cfg.method = sampleMethodEuler
	case SchedulerPNDM:
		cfg.method = sampleMethodPNDM
	case SchedulerDPM2MSDE:
		cfg.method = sampleMethodDPM2SAncestral
	}

	return cfg
}
