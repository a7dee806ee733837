/*
Package capture runs imaging sessions on the station: it drives the serial
handshake with the fixture, switches the camera between the top-down and
side-view phases, and persists every frame next to the run's label record.

A Controller owns at most one run at a time. StartRun returns immediately
with a RunHandle; the run itself executes on a worker goroutine that is the
only user of the camera and the serial link until it completes.
*/
package capture

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/buckleypaul/fastcap/internal/camera"
	"github.com/buckleypaul/fastcap/internal/config"
	"github.com/buckleypaul/fastcap/internal/label"
	"github.com/buckleypaul/fastcap/internal/serial"
	"github.com/buckleypaul/fastcap/internal/store"
	"github.com/buckleypaul/fastcap/internal/transform"
)

// Link is the line-oriented fixture connection. ReadLine is a single
// bounded poll.
type Link interface {
	ReadLine() (string, bool, error)
	WriteLine(string) error
	Close() error
}

// bufferedLink is implemented by links that can report input received but
// not yet returned by ReadLine.
type bufferedLink interface {
	Buffered() bool
}

// Dialer opens the fixture link for one run.
type Dialer func(ctx context.Context) (Link, error)

// SerialDialer dials the fixture over a serial port.
func SerialDialer(s serial.Settings) Dialer {
	return func(ctx context.Context) (Link, error) {
		l, err := serial.Open(ctx, s)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Directory allocates run directories and persists their files.
type Directory interface {
	AllocateRun(id string) (string, error)
	WriteLabel(dir string, rec label.Record) error
	CreateShot(dir string, n int, id, ext string) (io.WriteCloser, error)
	RecordRun(r store.RunRecord) error
}

// Previewer produces the live-feed overlay for the first shot.
type Previewer interface {
	Preview(ctx context.Context, img image.Image) (image.Image, error)
}

// Settings controls how runs are executed.
type Settings struct {
	TopDown  camera.Configuration
	SideView camera.Configuration

	PollInterval  time.Duration
	AcquireFloor  time.Duration
	AcquireMargin time.Duration

	ImageFormat string
	Station     label.Station
}

// DefaultSettings mirrors config.Defaults.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Defaults())
}

// SettingsFromConfig maps the persisted configuration onto run settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		TopDown:       phaseConfig(camera.TopDown, cfg.TopDown),
		SideView:      phaseConfig(camera.SideView, cfg.SideView),
		PollInterval:  time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		AcquireFloor:  time.Duration(cfg.AcquireFloorMS) * time.Millisecond,
		AcquireMargin: time.Duration(cfg.AcquireMarginMS) * time.Millisecond,
		ImageFormat:   cfg.ImageFormat,
		Station: label.Station{
			Version:       cfg.PlatformVersion,
			Configuration: cfg.PlatformConfiguration,
		},
	}
}

func phaseConfig(p camera.Phase, c config.Phase) camera.Configuration {
	out := camera.Configuration{Phase: p}
	if c.ExposureMicros > 0 {
		out.Exposure = camera.Exposure{Micros: c.ExposureMicros}
	} else {
		out.Exposure = camera.Exposure{Auto: true}
	}
	if c.WhiteBalance.Auto {
		out.WhiteBalance = camera.WhiteBalance{Auto: true}
	} else {
		out.WhiteBalance = camera.WhiteBalance{Red: c.WhiteBalance.Red, Blue: c.WhiteBalance.Blue}
	}
	return out
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(c *Controller) { c.settings = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithPreviewer installs the live-feed previewer.
func WithPreviewer(p Previewer) Option {
	return func(c *Controller) { c.preview = p }
}

// Controller starts capture runs. It is safe for concurrent use.
type Controller struct {
	dev      camera.Device
	dir      Directory
	dial     Dialer
	settings Settings
	log      *zap.Logger
	now      func() time.Time
	preview  Previewer

	mu   sync.Mutex
	busy bool
}

// New returns a Controller that borrows dev for each run. The caller keeps
// ownership of dev.
func New(dev camera.Device, dir Directory, dial Dialer, opts ...Option) *Controller {
	c := &Controller{
		dev:      dev,
		dir:      dir,
		dial:     dial,
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.L()
	}
	if c.settings.PollInterval <= 0 {
		c.settings.PollInterval = 50 * time.Millisecond
	}
	return c
}

// Settings returns the settings the next run will use.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings replaces the settings for subsequent runs. A run in progress
// keeps the settings it started with.
func (c *Controller) SetSettings(s Settings) {
	if s.PollInterval <= 0 {
		s.PollInterval = 50 * time.Millisecond
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// Busy reports whether a run is active.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Request describes one run. An empty ID gets a fresh UUID.
type Request struct {
	ID       string
	Label    label.Input
	Shots    int
	LiveFeed bool
}

// StartRun validates the request, opens the link and writes the label
// record, then hands the run to a worker goroutine. Errors from directory or
// link setup are returned as *Error and no worker is started. Cancelling
// ctx requests cancellation of the run, like RunHandle.Cancel.
func (c *Controller) StartRun(ctx context.Context, req Request) (*RunHandle, error) {
	settings, ok := c.acquire()
	if !ok {
		return nil, newError(Busy, -1, ErrBusy)
	}
	h, link, err := c.prepare(ctx, settings, req)
	if err != nil {
		c.release()
		return nil, err
	}

	r := c.newRun(ctx, settings, h, link, req)
	go r.run()
	return h, nil
}

func (c *Controller) prepare(ctx context.Context, settings Settings, req Request) (*RunHandle, Link, error) {
	if req.Shots < 1 {
		return nil, nil, errors.Errorf("capture: shot count must be at least 1, got %d", req.Shots)
	}
	if _, err := transform.Ext(settings.ImageFormat); err != nil {
		return nil, nil, err
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	rec, err := label.Build(id, req.Label, settings.Station, req.Shots, c.now())
	if err != nil {
		return nil, nil, err
	}

	// The link is opened first so a missing port leaves nothing on disk.
	link, err := c.dial(ctx)
	if err != nil {
		return nil, nil, newError(LinkOpen, -1, err)
	}

	dir, err := c.dir.AllocateRun(id)
	if err != nil {
		link.Close()
		return nil, nil, newError(DirectoryAllocation, -1, err)
	}
	if err := c.dir.WriteLabel(dir, rec); err != nil {
		link.Close()
		return nil, nil, newError(DirectoryAllocation, -1, err)
	}
	return newHandle(id, dir, req.Shots), link, nil
}

func (c *Controller) acquire() (Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return Settings{}, false
	}
	c.busy = true
	return c.settings, true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}
