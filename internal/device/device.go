// Package device gathers the context sent with login and unusual sign-in verification: device type, OS, app
// version, a stable per-device identifier, best-effort geolocation and best-effort public IP.
//
// Lookups never fail the caller. A missing geolocation or IP resolves to null.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/storydesk/internal/shared"
)

// IDKey is the durable store key holding the per-device identifier.
const IDKey = "deviceId"

var getRuntime = func() string { return runtime.GOOS }

// Info describes this installation.
type Info struct {
	DeviceType       string `json:"deviceType"`
	OS               string `json:"os"`
	AppVersion       string `json:"appVersion"`
	UniqueIdentifier string `json:"uniqueIdentifier"`
}

// Location is a best-effort position. Both fields are nil when unknown.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Context is everything a login payload reports about the device.
type Context struct {
	Location  Location
	IPAddress *string
	Info      Info
}

// KeyValueStore persists the device identifier.
type KeyValueStore interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
}

// Options configures a [Collector].
type Options struct {
	AppVersion   string
	IPLookupURL  string
	GeoLookupURL string
	GeoTimeout   time.Duration
	Client       *http.Client
	Logger       *log.Logger
}

// Collector produces [Context] values. It holds no state besides the persisted identifier.
type Collector struct {
	kv           KeyValueStore
	client       *http.Client
	appVersion   string
	ipLookupURL  string
	geoLookupURL string
	geoTimeout   time.Duration
	logger       *log.Logger
}

// NewCollector creates a [Collector].
func NewCollector(kv KeyValueStore, opts Options) *Collector {
	if opts.AppVersion == "" {
		opts.AppVersion = "1.0.0"
	}
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = 5 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Collector{
		kv:           kv,
		client:       opts.Client,
		appVersion:   opts.AppVersion,
		ipLookupURL:  opts.IPLookupURL,
		geoLookupURL: opts.GeoLookupURL,
		geoTimeout:   opts.GeoTimeout,
		logger:       opts.Logger.With("component", "device"),
	}
}

// Collect gathers location and IP concurrently and waits for both to settle before returning.
func (c *Collector) Collect(ctx context.Context) Context {
	var (
		loc Location
		ip  *string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc = c.Location(gctx)
		return nil
	})
	g.Go(func() error {
		ip = c.IPAddress(gctx)
		return nil
	})
	_ = g.Wait()

	return Context{Location: loc, IPAddress: ip, Info: c.Info(ctx)}
}

// Info describes the running platform.
func (c *Collector) Info(ctx context.Context) Info {
	goos := getRuntime()
	return Info{
		DeviceType:       deviceType(goos),
		OS:               osName(goos),
		AppVersion:       c.appVersion,
		UniqueIdentifier: c.DeviceID(ctx),
	}
}

// DeviceID returns the persisted identifier, generating and storing one on first use.
//
// When the store is unavailable a fresh identifier is returned without being persisted.
func (c *Collector) DeviceID(ctx context.Context) string {
	id, err := c.kv.GetString(ctx, IDKey)
	if err != nil {
		c.logger.Warn("failed to read device id", "error", err)
	}
	if id != "" {
		return id
	}

	id = shared.GenerateID()
	if err := c.kv.SetString(ctx, IDKey, id); err != nil {
		c.logger.Warn("failed to persist device id", "error", err)
	}
	return id
}

// Location looks up an approximate position within the geolocation timeout.
func (c *Collector) Location(ctx context.Context) Location {
	if c.geoLookupURL == "" {
		return Location{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.geoTimeout)
	defer cancel()

	var body struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
	}
	if err := c.fetchJSON(ctx, c.geoLookupURL, &body); err != nil {
		c.logger.Debug("geolocation unavailable", "error", err)
		return Location{}
	}

	loc := Location{Latitude: body.Latitude, Longitude: body.Longitude}
	if loc.Latitude == nil {
		loc.Latitude = body.Lat
	}
	if loc.Longitude == nil {
		loc.Longitude = body.Lon
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		return Location{}
	}
	return loc
}

// IPAddress looks up the public IP address.
func (c *Collector) IPAddress(ctx context.Context) *string {
	if c.ipLookupURL == "" {
		return nil
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := c.fetchJSON(ctx, c.ipLookupURL, &body); err != nil {
		c.logger.Debug("ip lookup failed", "error", err)
		return nil
	}
	if body.IP == "" {
		return nil
	}
	return &body.IP
}

func (c *Collector) fetchJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func deviceType(goos string) string {
	switch goos {
	case "android", "ios":
		return "mobile"
	default:
		return "desktop"
	}
}

func osName(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "MacOS"
	case "linux":
		return "Linux"
	case "ios":
		return "iOS"
	case "android":
		return "Android"
	default:
		return "Unknown"
	}
}
