// Package lighting implements the lighting capability over a pluggable
// backend (a Hue bridge or Home Assistant). It owns the color table and
// brightness scale shared by every backend.
package lighting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownColor is returned when a color name is not in the table.
var ErrUnknownColor = errors.New("unknown color")

// Light is a single lamp as reported by the backend.
type Light struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	On         bool   `json:"on"`
	Brightness int    `json:"brightness"` // percent, 0-100
	Reachable  bool   `json:"reachable"`
}

// Color is a Hue-native color: hue 0-65535, saturation 0-254.
type Color struct {
	Hue uint16
	Sat uint8
}

var colors = map[string]Color{
	"red":    {Hue: 0, Sat: 254},
	"blue":   {Hue: 46920, Sat: 254},
	"green":  {Hue: 25500, Sat: 254},
	"yellow": {Hue: 12750, Sat: 254},
	"purple": {Hue: 56100, Sat: 254},
	"pink":   {Hue: 56100, Sat: 175},
	"white":  {Hue: 0, Sat: 0},
}

// ResolveColor looks up a color by case-insensitive name.
func ResolveColor(name string) (Color, error) {
	c, ok := colors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Color{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownColor, name, strings.Join(ColorNames(), ", "))
	}
	return c, nil
}

// ColorNames lists the supported color names in sorted order.
func ColorNames() []string {
	names := make([]string, 0, len(colors))
	for n := range colors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Command is a resolved state change handed to a backend. Nil fields
// are left unchanged.
type Command struct {
	On         *bool
	Brightness *int // percent, 1-100
	Color      *Color
}

// Backend talks to the physical lighting system.
type Backend interface {
	Lights(ctx context.Context) ([]Light, error)
	SetLight(ctx context.Context, id string, cmd Command) error
	SetGroup(ctx context.Context, id string, cmd Command) error
	SetAll(ctx context.Context, cmd Command) error
}

// State is the caller-facing request: a color is given by name.
type State struct {
	On         *bool
	Brightness *int
	Color      string
}

// Service validates requests and forwards them to a Backend.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

// NewService wraps backend.
func NewService(backend Backend, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// ListLights returns all lights sorted by id.
func (s *Service) ListLights(ctx context.Context) ([]Light, error) {
	lights, err := s.backend.Lights(ctx)
	if err != nil {
		return nil, err
	}
	sortLights(lights)
	return lights, nil
}

// SetLight applies st to one light.
func (s *Service) SetLight(ctx context.Context, id string, st State) error {
	if id == "" {
		return errors.New("light id is required")
	}
	cmd, err := resolve(st)
	if err != nil {
		return err
	}
	s.logger.Debug("setting light", "light", id, "state", describe(cmd))
	return s.backend.SetLight(ctx, id, cmd)
}

// SetGroup applies st to a group (Hue group or Home Assistant area).
func (s *Service) SetGroup(ctx context.Context, id string, st State) error {
	if id == "" {
		return errors.New("group id is required")
	}
	cmd, err := resolve(st)
	if err != nil {
		return err
	}
	s.logger.Debug("setting group", "group", id, "state", describe(cmd))
	return s.backend.SetGroup(ctx, id, cmd)
}

// SetAll applies st to every light.
func (s *Service) SetAll(ctx context.Context, st State) error {
	cmd, err := resolve(st)
	if err != nil {
		return err
	}
	s.logger.Debug("setting all lights", "state", describe(cmd))
	return s.backend.SetAll(ctx, cmd)
}

// Summary renders the current light list for the system prompt.
func (s *Service) Summary(ctx context.Context) (string, error) {
	lights, err := s.ListLights(ctx)
	if err != nil {
		return "", err
	}
	return FormatLights(lights), nil
}

// FormatLights renders lights as a "Found N lights:" list.
func FormatLights(lights []Light) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d lights:", len(lights))
	for _, l := range lights {
		status := "Off"
		if l.On {
			status = "On"
		}
		fmt.Fprintf(&b, "\n- %s (%s): %s, Brightness: %d%%", l.Name, l.ID, status, l.Brightness)
	}
	return b.String()
}

// HueBrightness converts a percentage to the Hue 1-254 scale.
func HueBrightness(pct int) int {
	bri := (pct*254 + 50) / 100
	return max(1, min(254, bri))
}

// PercentFromHue converts a Hue 0-254 brightness back to percent.
func PercentFromHue(bri int) int {
	return (bri*100 + 127) / 254
}

func resolve(st State) (Command, error) {
	var cmd Command
	cmd.On = st.On
	if st.Brightness != nil {
		pct := *st.Brightness
		if pct < 0 || pct > 100 {
			return Command{}, fmt.Errorf("brightness %d out of range (0-100)", pct)
		}
		if pct == 0 {
			off := false
			cmd.On = &off
		} else {
			cmd.Brightness = &pct
			if cmd.On == nil {
				on := true
				cmd.On = &on
			}
		}
	}
	if st.Color != "" {
		c, err := ResolveColor(st.Color)
		if err != nil {
			return Command{}, err
		}
		cmd.Color = &c
		if cmd.On == nil {
			on := true
			cmd.On = &on
		}
	}
	if cmd.On == nil && cmd.Brightness == nil && cmd.Color == nil {
		return Command{}, errors.New("no state change requested")
	}
	return cmd, nil
}

func describe(cmd Command) string {
	var parts []string
	if cmd.On != nil {
		parts = append(parts, "on="+strconv.FormatBool(*cmd.On))
	}
	if cmd.Brightness != nil {
		parts = append(parts, "brightness="+strconv.Itoa(*cmd.Brightness)+"%")
	}
	if cmd.Color != nil {
		parts = append(parts, fmt.Sprintf("hue=%d sat=%d", cmd.Color.Hue, cmd.Color.Sat))
	}
	return strings.Join(parts, " ")
}

// sortLights orders numerically when ids are numbers (Hue) and
// lexically otherwise (Home Assistant entity ids).
func sortLights(lights []Light) {
	sort.Slice(lights, func(i, j int) bool {
		a, aerr := strconv.Atoi(lights[i].ID)
		b, berr := strconv.Atoi(lights[j].ID)
		if aerr == nil && berr == nil {
			return a < b
		}
		return lights[i].ID < lights[j].ID
	})
}
