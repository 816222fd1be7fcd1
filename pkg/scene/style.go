package scene

import (
	"math"

	"github.com/chazu/stepwise/pkg/project"
)

// Style is the visual treatment of one connection style.
type Style struct {
	Name      project.ConnectionStyle `json:"name"`
	Color     project.Color           `json:"color"`
	Active    project.Color           `json:"active"`
	Opacity   float64                 `json:"opacity"`
	Emissive  float64                 `json:"emissive"`
	GlowShell bool                    `json:"glowShell"`
	PulseAmp  float64                 `json:"pulseAmp"`
	PulseFreq float64                 `json:"pulseFreq"`
}

var styles = map[project.ConnectionStyle]Style{
	project.StyleStandard: {Name: project.StyleStandard, Color: "#9aa4b1", Active: "#ffffff", Opacity: 0.9},
	project.StyleGlass:    {Name: project.StyleGlass, Color: "#a8d8ff", Active: "#e0f2ff", Opacity: 0.35, Emissive: 0.1},
	project.StyleGlow:     {Name: project.StyleGlow, Color: "#ffb347", Active: "#ffd699", Opacity: 0.8, Emissive: 0.6, GlowShell: true, PulseAmp: 0.15, PulseFreq: 2},
	project.StyleNeon:     {Name: project.StyleNeon, Color: "#ff2bd6", Active: "#ff8ae8", Opacity: 0.95, Emissive: 1.2, GlowShell: true, PulseAmp: 0.2, PulseFreq: 4},
}

// StyleFor returns the style table entry for s. Unknown and empty styles
// resolve to standard.
func StyleFor(s project.ConnectionStyle) Style {
	if st, ok := styles[s]; ok {
		return st
	}
	return styles[project.StyleStandard]
}

// Pulse returns the opacity at elapsed seconds t. Active connections pulse
// with twice the amplitude and the same phase. The result is clamped to
// [0, 1].
func (s Style) Pulse(t float64, active bool) float64 {
	amp := s.PulseAmp
	if active {
		amp *= 2
	}
	return clamp01(s.Opacity + amp*math.Sin(t*s.PulseFreq))
}

// ColorFor returns the base or active color.
func (s Style) ColorFor(active bool) project.Color {
	if active {
		return s.Active
	}
	return s.Color
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
