package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/config"
	"github.com/nugget/hearth/internal/events"
)

// Announcer publishes alarm notices to the broker.
type Announcer struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// New creates an Announcer but does not connect.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.ClientID),
		logger:     logger,
	}
}

// Run connects and publishes every alarm-fired event from alarms until
// ctx is cancelled or the channel closes. A broker that is down at
// start is retried in the background; notices fired meanwhile are
// logged and dropped.
func (a *Announcer) Run(ctx context.Context, alarms <-chan events.Event) error {
	brokerURL, err := url.Parse(a.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.cfg.Username,
		ConnectPassword: []byte(a.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   a.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.logger.Info("mqtt connected to broker", "broker", a.cfg.Broker)
			a.publishDiscovery(ctx, cm)
			a.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			a.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: a.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	a.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		a.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-alarms:
			if !ok {
				return nil
			}
			if n, fired := alarm.NoticeFromEvent(e); fired {
				a.announce(ctx, n)
			}
		}
	}
}

// Stop publishes "offline" and disconnects.
func (a *Announcer) Stop(ctx context.Context) error {
	if a.cm == nil {
		return nil
	}
	a.publishAvailability(ctx, a.cm, "offline")
	return a.cm.Disconnect(ctx)
}

func (a *Announcer) alarmTopic() string {
	return a.cfg.TopicPrefix + "/alarm"
}

func (a *Announcer) availabilityTopic() string {
	return a.cfg.TopicPrefix + "/availability"
}

func (a *Announcer) discoveryTopic() string {
	return a.cfg.DiscoveryPrefix + "/sensor/" + a.cfg.ClientID + "/last_alarm/config"
}

func (a *Announcer) sensorConfig() SensorConfig {
	return SensorConfig{
		Name:                "Last Alarm",
		UniqueID:            a.instanceID + "_last_alarm",
		StateTopic:          a.alarmTopic(),
		AvailabilityTopic:   a.availabilityTopic(),
		JsonAttributesTopic: a.alarmTopic(),
		ValueTemplate:       "{{ value_json.message }}",
		Device:              a.device,
		Icon:                "mdi:alarm",
	}
}

func (a *Announcer) announce(ctx context.Context, n alarm.Notice) {
	log := a.logger.With("alarm_id", n.ID)
	payload, err := json.Marshal(n)
	if err != nil {
		log.Error("mqtt marshal alarm", "error", err)
		return
	}
	if _, err := a.cm.Publish(ctx, &paho.Publish{
		Topic:   a.alarmTopic(),
		Payload: payload,
		QoS:     1,
	}); err != nil {
		log.Warn("mqtt alarm publish failed", "topic", a.alarmTopic(), "error", err)
		return
	}
	log.Debug("mqtt alarm published", "topic", a.alarmTopic())
}

func (a *Announcer) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	payload, err := json.Marshal(a.sensorConfig())
	if err != nil {
		a.logger.Error("mqtt marshal discovery payload", "error", err)
		return
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   a.discoveryTopic(),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		a.logger.Warn("mqtt discovery publish failed", "topic", a.discoveryTopic(), "error", err)
	}
}

func (a *Announcer) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   a.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		a.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}
