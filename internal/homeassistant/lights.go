package homeassistant

import (
	"context"
	"math"
	"strings"

	"github.com/nugget/hearth/internal/lighting"
)

// Lights adapts a Client to the lighting backend interface. Light ids
// are entity ids ("light.kitchen"); a bare object id is accepted and
// prefixed. Group ids are Home Assistant area ids.
type Lights struct {
	client *Client
}

// NewLights returns a lighting backend backed by c.
func NewLights(c *Client) *Lights {
	return &Lights{client: c}
}

var _ lighting.Backend = (*Lights)(nil)

// Lights returns every light.* entity.
func (l *Lights) Lights(ctx context.Context) ([]lighting.Light, error) {
	states, err := l.client.GetStates(ctx)
	if err != nil {
		return nil, err
	}

	var out []lighting.Light
	for _, s := range states {
		if s.Domain() != "light" {
			continue
		}
		on := s.State == "on"
		pct := 0
		if bri, ok := s.Attributes["brightness"].(float64); ok && on {
			pct = lighting.PercentFromHue(int(math.Round(bri)))
		}
		out = append(out, lighting.Light{
			ID:         s.EntityID,
			Name:       s.FriendlyName(),
			On:         on,
			Brightness: pct,
			Reachable:  s.State != "unavailable",
		})
	}
	return out, nil
}

// SetLight changes one light entity.
func (l *Lights) SetLight(ctx context.Context, id string, cmd lighting.Command) error {
	if !strings.Contains(id, ".") {
		id = "light." + id
	}
	return l.call(ctx, map[string]any{"entity_id": id}, cmd)
}

// SetGroup changes every light in an area.
func (l *Lights) SetGroup(ctx context.Context, id string, cmd lighting.Command) error {
	return l.call(ctx, map[string]any{"area_id": id}, cmd)
}

// SetAll changes every light entity.
func (l *Lights) SetAll(ctx context.Context, cmd lighting.Command) error {
	return l.call(ctx, map[string]any{"entity_id": "all"}, cmd)
}

func (l *Lights) call(ctx context.Context, data map[string]any, cmd lighting.Command) error {
	if cmd.On != nil && !*cmd.On {
		return l.client.CallService(ctx, "light", "turn_off", data)
	}
	if cmd.Brightness != nil {
		data["brightness_pct"] = *cmd.Brightness
	}
	if cmd.Color != nil {
		// Hue-native 0-65535 / 0-254 to Home Assistant degrees / percent.
		h := math.Round(float64(cmd.Color.Hue) * 360 / 65535)
		s := math.Round(float64(cmd.Color.Sat) * 100 / 254)
		data["hs_color"] = []float64{h, s}
	}
	return l.client.CallService(ctx, "light", "turn_on", data)
}
