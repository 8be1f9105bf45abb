// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

// Package regulator implements the feedback controller used to size
// backfill query windows to a target record volume.
package regulator

// Config contains the controller gains and output bounds.
type Config struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Setpoint float64
	Min      float64
	Max      float64
}

// PID is a proportional-integral-derivative controller.
//
// The backfill walk runs it with only the integral gain active, so the
// output is the initial value plus the gain-weighted running sum of
// (setpoint - observed), saturated to the output bounds at every step.
type PID struct {
	cfg      Config
	integral float64
	lastErr  float64
}

// New returns a controller whose first output before any observation
// equals initial, clamped to the configured bounds.
func New(cfg Config, initial float64) *PID {
	p := &PID{cfg: cfg}
	p.integral = p.clamp(initial)
	return p
}

// Update feeds the controller one observed value and returns the next
// output.
func (p *PID) Update(observed float64) float64 {
	err := p.cfg.Setpoint - observed
	p.integral = p.clamp(p.integral + p.cfg.Ki*err)
	out := p.clamp(p.cfg.Kp*err + p.integral + p.cfg.Kd*(err-p.lastErr))
	p.lastErr = err
	return out
}

// Output returns the current output without feeding an observation.
func (p *PID) Output() float64 {
	return p.integral
}

func (p *PID) clamp(v float64) float64 {
	if v < p.cfg.Min {
		return p.cfg.Min
	}
	if v > p.cfg.Max {
		return p.cfg.Max
	}
	return v
}
