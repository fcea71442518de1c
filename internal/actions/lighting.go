package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/hearth/internal/lighting"
)

var targetProps = map[string]any{
	"lightId": prop("string", "Light id from list_lights"),
	"groupId": prop("string", "Group (room) id; used when lightId is absent"),
}

func withTarget(extra map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range targetProps {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) registerLighting() {
	d.register(&Definition{
		Name: "turn_on", Domain: DomainLighting,
		Description: "Turn on a light or group",
		Parameters:  schema(withTarget(nil)),
		handler:     d.turnOn,
	})
	d.register(&Definition{
		Name: "turn_off", Domain: DomainLighting,
		Description: "Turn off a light or group",
		Parameters:  schema(withTarget(nil)),
		handler:     d.turnOff,
	})
	d.register(&Definition{
		Name: "adjust_brightness", Domain: DomainLighting,
		Description: "Set brightness of a light or group; 0 turns it off",
		Parameters: schema(withTarget(map[string]any{
			"brightness": prop("integer", "Percent, 0-100"),
		}), "brightness"),
		handler: d.adjustBrightness,
	})
	d.register(&Definition{
		Name: "change_color", Domain: DomainLighting,
		Description: "Change the color of a light or group (" + strings.Join(lighting.ColorNames(), ", ") + ")",
		Parameters: schema(withTarget(map[string]any{
			"color": prop("string", "Color name"),
		}), "color"),
		handler: d.changeColor,
	})
	d.register(&Definition{
		Name: "list_lights", Domain: DomainLighting,
		Description: "List lights with their state",
		Parameters:  schema(map[string]any{}),
		handler:     d.listLights,
	})
	d.register(&Definition{
		Name: "control_group", Domain: DomainLighting,
		Description: "Turn a group on or off",
		Parameters: schema(map[string]any{
			"groupId": prop("string", "Group id"),
			"action":  prop("string", `"on" or "off"`),
		}, "groupId", "action"),
		handler: d.controlGroup,
	})
	d.register(&Definition{
		Name: "turn_all_on", Domain: DomainLighting,
		Description: "Turn on every light",
		Parameters:  schema(map[string]any{}),
		handler:     d.setAll(true),
	})
	d.register(&Definition{
		Name: "turn_all_off", Domain: DomainLighting,
		Description: "Turn off every light",
		Parameters:  schema(map[string]any{}),
		handler:     d.setAll(false),
	})
}

// target is the light or group an action applies to.
type target struct {
	light, group string
}

func targetOf(params map[string]any) (target, error) {
	t := target{light: str(params, "lightId"), group: str(params, "groupId")}
	if t.light == "" && t.group == "" {
		return t, errors.New("lightId or groupId is required")
	}
	return t, nil
}

func (t target) String() string {
	if t.light != "" {
		return "light " + t.light
	}
	return "lights in group " + t.group
}

func (d *Dispatcher) apply(ctx context.Context, t target, st lighting.State) error {
	if t.light != "" {
		return d.p.Lighting.SetLight(ctx, t.light, st)
	}
	return d.p.Lighting.SetGroup(ctx, t.group, st)
}

func (d *Dispatcher) turnOn(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	return d.switchTarget(ctx, params, true)
}

func (d *Dispatcher) turnOff(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	return d.switchTarget(ctx, params, false)
}

func (d *Dispatcher) switchTarget(ctx context.Context, params map[string]any, on bool) (any, error) {
	if d.p.Lighting == nil {
		return nil, ErrNotConfigured
	}
	t, err := targetOf(params)
	if err != nil {
		return nil, err
	}
	if err := d.apply(ctx, t, lighting.State{On: &on}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Turned %s %s", onOff(on), t), nil
}

func (d *Dispatcher) adjustBrightness(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Lighting == nil {
		return nil, ErrNotConfigured
	}
	t, err := targetOf(params)
	if err != nil {
		return nil, err
	}
	pct, ok, err := num(params, "brightness")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("brightness is required")
	}
	if err := d.apply(ctx, t, lighting.State{Brightness: &pct}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Set brightness to %d%% for %s", pct, t), nil
}

func (d *Dispatcher) changeColor(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Lighting == nil {
		return nil, ErrNotConfigured
	}
	t, err := targetOf(params)
	if err != nil {
		return nil, err
	}
	color, err := requireStr(params, "color")
	if err != nil {
		return nil, err
	}
	if err := d.apply(ctx, t, lighting.State{Color: color}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Changed color to %s for %s", strings.ToLower(color), t), nil
}

func (d *Dispatcher) listLights(ctx context.Context, _ map[string]any, _ *RequestContext) (any, error) {
	if d.p.Lighting == nil {
		return nil, ErrNotConfigured
	}
	lights, err := d.p.Lighting.ListLights(ctx)
	if err != nil {
		return nil, err
	}
	return lighting.FormatLights(lights), nil
}

func (d *Dispatcher) controlGroup(ctx context.Context, params map[string]any, _ *RequestContext) (any, error) {
	if d.p.Lighting == nil {
		return nil, ErrNotConfigured
	}
	group, err := requireStr(params, "groupId")
	if err != nil {
		return nil, err
	}
	var on bool
	switch strings.ToLower(str(params, "action")) {
	case "on":
		on = true
	case "off":
	default:
		return nil, fmt.Errorf("action must be \"on\" or \"off\", got %q", str(params, "action"))
	}
	t := target{group: group}
	if err := d.apply(ctx, t, lighting.State{On: &on}); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Turned %s %s", onOff(on), t), nil
}

func (d *Dispatcher) setAll(on bool) Handler {
	return func(ctx context.Context, _ map[string]any, _ *RequestContext) (any, error) {
		if d.p.Lighting == nil {
			return nil, ErrNotConfigured
		}
		if err := d.p.Lighting.SetAll(ctx, lighting.State{On: &on}); err != nil {
			return nil, err
		}
		return fmt.Sprintf("Turned %s all lights", onOff(on)), nil
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
