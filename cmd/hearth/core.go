package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/calendar"
	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/email"
	"github.com/nugget/hearth/internal/events"
	"github.com/nugget/hearth/internal/homeassistant"
	"github.com/nugget/hearth/internal/hue"
	"github.com/nugget/hearth/internal/lighting"
	"github.com/nugget/hearth/internal/llm"
	"github.com/nugget/hearth/internal/orchestrator"
)

// core is the part of the process shared by serve and ask: providers,
// the action dispatcher, the alarm scheduler and the orchestrator.
type core struct {
	alarms *alarm.Scheduler
	mail   *email.Manager
	hue    *hue.Client
	orch   *orchestrator.Orchestrator
}

// newCore wires every configured provider. Providers that are not
// configured stay nil so their actions fail with a clear message.
// journal may be nil.
func newCore(ctx context.Context, cfg *config.Config, logger *slog.Logger, journal orchestrator.Recorder) (*core, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	c := &core{
		alarms: alarm.New(clock.New(), logger.With("component", "alarm")),
	}
	providers := actions.Providers{
		Alarms:   c.alarms,
		Location: loc,
	}

	if cfg.Calendar.Configured() {
		cal, err := calendar.NewClient(cfg.Calendar, loc, logger.With("component", "calendar"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("calendar: %w", err)
		}
		providers.Calendar = cal
		logger.Info("calendar enabled", "url", cfg.Calendar.URL)
	} else {
		logger.Info("calendar disabled (not configured)")
	}

	if cfg.Email.Configured() {
		c.mail = email.NewManager(cfg.Email, logger.With("component", "email"))
		providers.Mail = c.mail
		logger.Info("email enabled", "accounts", c.mail.AccountNames())
	} else {
		logger.Info("email disabled (not configured)")
	}

	var lights *lighting.Service
	switch cfg.Lighting.Backend {
	case config.LightingHomeAssistant:
		if cfg.Lighting.Configured() {
			ha := homeassistant.NewClient(cfg.Lighting.HomeAssistant.URL, cfg.Lighting.HomeAssistant.Token, logger.With("component", "homeassistant"))
			lights = lighting.NewService(homeassistant.NewLights(ha), logger.With("component", "lighting"))
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := ha.Ping(pingCtx); err != nil {
				logger.Warn("home assistant not reachable at startup", "url", cfg.Lighting.HomeAssistant.URL, "error", err)
			}
			cancel()
			logger.Info("lighting enabled", "backend", "homeassistant", "url", cfg.Lighting.HomeAssistant.URL)
		} else {
			logger.Info("lighting disabled (homeassistant url or token missing)")
		}
	default:
		// The Hue client exists even before linking so the setup routes
		// can discover and link a bridge.
		hc := cfg.Lighting.Hue
		c.hue = hue.NewClient(hc.BridgeIP, hc.Username, hc.DiscoveryURL, logger.With("component", "hue"))
		lights = lighting.NewService(c.hue, logger.With("component", "lighting"))
		if cfg.Lighting.Configured() {
			logger.Info("lighting enabled", "backend", "hue", "bridge_ip", hc.BridgeIP)
		} else {
			logger.Warn("hue bridge not linked; use /hue/bridge/discover and /hue/bridge/link")
		}
	}

	ocfg := orchestrator.Config{
		Bus:      events.New(),
		Location: loc,
		Logger:   logger.With("component", "orchestrator"),
		Journal:  journal,
	}
	if lights != nil {
		providers.Lighting = lights
		ocfg.Lights = lights
	}
	ocfg.Dispatcher = actions.New(providers, logger.With("component", "actions"))

	ocfg.LLM, err = llm.New(cfg.LLM, logger.With("component", "llm"))
	if err != nil {
		c.Close()
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ocfg.LLM.Ping(pingCtx); err != nil {
		logger.Warn("model endpoint not reachable at startup", "base_url", cfg.LLM.BaseURL, "error", err)
	}

	c.orch = orchestrator.New(ocfg)
	return c, nil
}

// Close stops the alarm scheduler and logs out of mail servers.
func (c *core) Close() {
	c.alarms.Stop()
	if c.mail != nil {
		c.mail.Close()
	}
}
