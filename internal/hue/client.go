// Package hue talks to a Philips Hue bridge over its local v1 REST API
// and implements the lighting backend on top of it.
package hue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nugget/hearth/internal/httpkit"
	"github.com/nugget/hearth/internal/lighting"
)

// DeviceType identifies Hearth when linking with a bridge.
const DeviceType = "hearth#server"

// ErrNotLinked is returned when no bridge application key is known.
var ErrNotLinked = errors.New("hue bridge not linked: press the link button and POST /hue/bridge/link")

// ErrNoBridge is returned when discovery finds nothing.
var ErrNoBridge = errors.New("no Philips Hue bridge found")

// Client is a Hue bridge client. The bridge address and application key
// can be set after construction by discovery and linking.
type Client struct {
	http         *http.Client
	discoveryURL string
	logger       *slog.Logger

	mu       sync.RWMutex
	bridgeIP string
	username string
}

// NewClient creates a client. bridgeIP and username may be empty until
// Discover and Link run.
func NewClient(bridgeIP, username, discoveryURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http: httpkit.NewClient(
			httpkit.WithTimeout(10*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithTLSInsecureSkipVerify(),
			httpkit.WithLogger(logger),
		),
		discoveryURL: discoveryURL,
		logger:       logger,
		bridgeIP:     bridgeIP,
		username:     username,
	}
}

// Bridge is one entry of the discovery response.
type Bridge struct {
	ID                string `json:"id"`
	InternalIPAddress string `json:"internalipaddress"`
	Port              int    `json:"port,omitempty"`
}

// Credentials returns the current bridge address and application key.
func (c *Client) Credentials() (bridgeIP, username string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridgeIP, c.username
}

// SetBridgeIP pins the bridge address, skipping discovery.
func (c *Client) SetBridgeIP(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bridgeIP = ip
}

// BridgeIP returns the known bridge address, running discovery first if
// none is set.
func (c *Client) BridgeIP(ctx context.Context) (string, error) {
	c.mu.RLock()
	ip := c.bridgeIP
	c.mu.RUnlock()
	if ip != "" {
		return ip, nil
	}

	bridges, err := c.Discover(ctx)
	if err != nil {
		return "", err
	}
	ip = bridges[0].InternalIPAddress

	c.mu.Lock()
	c.bridgeIP = ip
	c.mu.Unlock()
	c.logger.Info("hue bridge discovered", "bridge_ip", ip, "bridge_id", bridges[0].ID)
	return ip, nil
}

// Discover queries the discovery endpoint for bridges on the local
// network.
func (c *Client) Discover(ctx context.Context) ([]Bridge, error) {
	var bridges []Bridge
	if err := httpkit.DoJSON(ctx, c.http, http.MethodGet, c.discoveryURL, nil, nil, &bridges); err != nil {
		return nil, fmt.Errorf("hue discovery: %w", err)
	}
	var found []Bridge
	for _, b := range bridges {
		if b.InternalIPAddress != "" {
			found = append(found, b)
		}
	}
	if len(found) == 0 {
		return nil, ErrNoBridge
	}
	return found, nil
}

// apiResult is one element of the array a bridge returns for writes.
type apiResult struct {
	Success map[string]any `json:"success,omitempty"`
	Error   *APIError      `json:"error,omitempty"`
}

// APIError is an error reported in a bridge response body.
type APIError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hue %s: %s (type %d)", e.Address, e.Description, e.Type)
}

// LinkButtonNotPressed reports whether the bridge refused linking
// because its button was not pressed.
func (e *APIError) LinkButtonNotPressed() bool {
	return e.Type == 101
}

// Link creates an application key on the bridge. The link button must
// have been pressed within the last 30 seconds. On success the key is
// retained by the client.
func (c *Client) Link(ctx context.Context) (string, error) {
	ip, err := c.BridgeIP(ctx)
	if err != nil {
		return "", err
	}

	var results []apiResult
	body := map[string]string{"devicetype": DeviceType}
	if err := httpkit.DoJSON(ctx, c.http, http.MethodPost, "http://"+ip+"/api", nil, body, &results); err != nil {
		return "", fmt.Errorf("hue link: %w", err)
	}
	if len(results) == 0 {
		return "", errors.New("hue link: empty response")
	}
	if results[0].Error != nil {
		return "", results[0].Error
	}
	username, _ := results[0].Success["username"].(string)
	if username == "" {
		return "", errors.New("hue link: response missing username")
	}

	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
	c.logger.Info("hue bridge linked", "bridge_ip", ip)
	return username, nil
}

func (c *Client) baseURL(ctx context.Context) (string, error) {
	ip, err := c.BridgeIP(ctx)
	if err != nil {
		return "", err
	}
	c.mu.RLock()
	user := c.username
	c.mu.RUnlock()
	if user == "" {
		return "", ErrNotLinked
	}
	return "http://" + ip + "/api/" + user, nil
}

type hueLight struct {
	Name  string `json:"name"`
	State struct {
		On        bool `json:"on"`
		Bri       int  `json:"bri"`
		Reachable bool `json:"reachable"`
	} `json:"state"`
}

// Lights returns every light known to the bridge.
func (c *Client) Lights(ctx context.Context) ([]lighting.Light, error) {
	base, err := c.baseURL(ctx)
	if err != nil {
		return nil, err
	}

	// An unauthorized user gets a 200 with an error array instead of
	// an object, so decode loosely first.
	var raw any
	if err := httpkit.DoJSON(ctx, c.http, http.MethodGet, base+"/lights", nil, nil, &raw); err != nil {
		return nil, err
	}
	if err := bridgeError(raw); err != nil {
		return nil, err
	}

	var byID map[string]hueLight
	if err := remarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("decode lights: %w", err)
	}

	lights := make([]lighting.Light, 0, len(byID))
	for id, l := range byID {
		pct := 0
		if l.State.On {
			pct = lighting.PercentFromHue(l.State.Bri)
		}
		lights = append(lights, lighting.Light{
			ID:         id,
			Name:       l.Name,
			On:         l.State.On,
			Brightness: pct,
			Reachable:  l.State.Reachable,
		})
	}
	return lights, nil
}

// Group is a Hue room or zone.
type Group struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Lights []string `json:"lights"`
}

// Groups returns the rooms and zones configured on the bridge.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	base, err := c.baseURL(ctx)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := httpkit.DoJSON(ctx, c.http, http.MethodGet, base+"/groups", nil, nil, &raw); err != nil {
		return nil, err
	}
	if err := bridgeError(raw); err != nil {
		return nil, err
	}
	var byID map[string]Group
	if err := remarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	groups := make([]Group, 0, len(byID))
	for id, g := range byID {
		g.ID = id
		groups = append(groups, g)
	}
	return groups, nil
}

// SetLight writes a state change to one light.
func (c *Client) SetLight(ctx context.Context, id string, cmd lighting.Command) error {
	return c.put(ctx, "/lights/"+id+"/state", cmd)
}

// SetGroup writes a state change to a room or zone.
func (c *Client) SetGroup(ctx context.Context, id string, cmd lighting.Command) error {
	return c.put(ctx, "/groups/"+id+"/action", cmd)
}

// SetAll uses the bridge's built-in group 0, which contains every light.
func (c *Client) SetAll(ctx context.Context, cmd lighting.Command) error {
	return c.SetGroup(ctx, "0", cmd)
}

func (c *Client) put(ctx context.Context, path string, cmd lighting.Command) error {
	base, err := c.baseURL(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{}
	if cmd.On != nil {
		body["on"] = *cmd.On
	}
	if cmd.Brightness != nil {
		body["bri"] = lighting.HueBrightness(*cmd.Brightness)
	}
	if cmd.Color != nil {
		body["hue"] = cmd.Color.Hue
		body["sat"] = cmd.Color.Sat
	}

	var results []apiResult
	if err := httpkit.DoJSON(ctx, c.http, http.MethodPut, base+path, nil, body, &results); err != nil {
		return err
	}
	var errs []string
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

var _ lighting.Backend = (*Client)(nil)
