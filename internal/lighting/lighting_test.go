package lighting

import (
	"context"
	"errors"
	"testing"
)

type recordingBackend struct {
	lights []Light
	err    error

	target string
	cmd    Command
}

func (b *recordingBackend) Lights(context.Context) ([]Light, error) {
	return b.lights, b.err
}

func (b *recordingBackend) SetLight(_ context.Context, id string, cmd Command) error {
	b.target, b.cmd = "light:"+id, cmd
	return b.err
}

func (b *recordingBackend) SetGroup(_ context.Context, id string, cmd Command) error {
	b.target, b.cmd = "group:"+id, cmd
	return b.err
}

func (b *recordingBackend) SetAll(_ context.Context, cmd Command) error {
	b.target, b.cmd = "all", cmd
	return b.err
}

func ptr[T any](v T) *T { return &v }

func TestFormatLights(t *testing.T) {
	b := &recordingBackend{lights: []Light{
		{ID: "10", Name: "Porch", On: false, Brightness: 0},
		{ID: "2", Name: "Kitchen", On: true, Brightness: 80},
	}}
	got, err := NewService(b, nil).Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "Found 2 lights:\n- Kitchen (2): On, Brightness: 80%\n- Porch (10): Off, Brightness: 0%"
	if got != want {
		t.Errorf("Summary() =\n%s\nwant\n%s", got, want)
	}
}

func TestHueBrightness(t *testing.T) {
	tests := map[int]int{0: 1, 1: 3, 50: 127, 75: 191, 100: 254, 150: 254}
	for pct, want := range tests {
		if got := HueBrightness(pct); got != want {
			t.Errorf("HueBrightness(%d) = %d, want %d", pct, got, want)
		}
	}
	if got := PercentFromHue(254); got != 100 {
		t.Errorf("PercentFromHue(254) = %d", got)
	}
}

func TestResolveColor(t *testing.T) {
	c, err := ResolveColor(" Pink ")
	if err != nil {
		t.Fatal(err)
	}
	if c != (Color{Hue: 56100, Sat: 175}) {
		t.Errorf("pink = %+v", c)
	}
	if _, err := ResolveColor("chartreuse"); !errors.Is(err, ErrUnknownColor) {
		t.Errorf("err = %v, want ErrUnknownColor", err)
	}
}

func TestServiceResolvesState(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Service) error
		target  string
		on      *bool
		bri     *int
		color   *Color
		wantErr bool
	}{
		{
			name:   "turn on",
			call:   func(s *Service) error { return s.SetLight(context.Background(), "3", State{On: ptr(true)}) },
			target: "light:3", on: ptr(true),
		},
		{
			name:   "brightness implies on",
			call:   func(s *Service) error { return s.SetLight(context.Background(), "3", State{Brightness: ptr(40)}) },
			target: "light:3", on: ptr(true), bri: ptr(40),
		},
		{
			name:   "zero brightness turns off",
			call:   func(s *Service) error { return s.SetGroup(context.Background(), "1", State{Brightness: ptr(0)}) },
			target: "group:1", on: ptr(false),
		},
		{
			name:   "color",
			call:   func(s *Service) error { return s.SetAll(context.Background(), State{Color: "blue"}) },
			target: "all", on: ptr(true), color: &Color{Hue: 46920, Sat: 254},
		},
		{
			name:    "bad brightness",
			call:    func(s *Service) error { return s.SetLight(context.Background(), "3", State{Brightness: ptr(101)}) },
			wantErr: true,
		},
		{
			name:    "unknown color",
			call:    func(s *Service) error { return s.SetLight(context.Background(), "3", State{Color: "mauve"}) },
			wantErr: true,
		},
		{
			name:    "missing id",
			call:    func(s *Service) error { return s.SetLight(context.Background(), "", State{On: ptr(true)}) },
			wantErr: true,
		},
		{
			name:    "empty state",
			call:    func(s *Service) error { return s.SetAll(context.Background(), State{}) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &recordingBackend{}
			err := tt.call(NewService(b, nil))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if b.target != "" {
					t.Errorf("backend called on error: %s", b.target)
				}
				return
			}
			if b.target != tt.target {
				t.Errorf("target = %q, want %q", b.target, tt.target)
			}
			if !eqPtr(b.cmd.On, tt.on) || !eqPtr(b.cmd.Brightness, tt.bri) || !eqPtr(b.cmd.Color, tt.color) {
				t.Errorf("cmd = %s", describe(b.cmd))
			}
		})
	}
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
