package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/storydesk/internal/credentials"
	"github.com/desertthunder/storydesk/internal/device"
	"github.com/desertthunder/storydesk/internal/drafts"
	"github.com/desertthunder/storydesk/internal/events"
	"github.com/desertthunder/storydesk/internal/gateway"
	"github.com/desertthunder/storydesk/internal/guard"
	"github.com/desertthunder/storydesk/internal/repositories"
	"github.com/desertthunder/storydesk/internal/session"
	"github.com/desertthunder/storydesk/internal/shared"
	"github.com/desertthunder/storydesk/internal/stories"
	"github.com/desertthunder/storydesk/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	transport  http.RoundTripper
	logger     *log.Logger
	output     io.Writer
	input      *bufio.Reader
	password   func() (string, error)

	kv       *repositories.KVRepository
	bus      *events.Bus
	cookies  *credentials.CookieSurface
	creds    *credentials.Store
	gateway  *gateway.Gateway
	device   *device.Collector
	session  *session.Manager
	guard    *guard.Guard
	drafts   *drafts.Store
	stories  *stories.Service
	exporter *tasks.Exporter
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	DB         *sql.DB
	Transport  http.RoundTripper
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	// Password reads a password without echo. Defaults to a terminal prompt.
	Password func() (string, error)
}

// NewRunner creates a new Runner with the provided configuration.
//
// Backend services are not built until [Runner.Wire] runs.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		db:         opts.DB,
		transport:  opts.Transport,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      bufio.NewReader(opts.Input),
		password:   opts.Password,
	}
	if r.password == nil {
		r.password = r.promptPassword
	}
	return r
}

// Wire builds the backend services on top of the runner's database. Calling it again rebuilds them, which is
// how a new logger reaches every component.
func (r *Runner) Wire(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("%w: database not opened", shared.ErrMissingConfig)
	}
	if r.session != nil {
		r.session.Close()
	}

	cfg := r.config
	r.kv = repositories.NewKVRepository(r.db)
	r.bus = events.New()

	cookies, err := credentials.NewCookieSurface(ctx, cfg.API.BaseURL, repositories.NewCookieRepository(r.db), r.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	r.cookies = cookies
	r.creds = credentials.NewStore(r.logger, credentials.NewDurableSurface(r.kv), cookies)

	r.gateway = gateway.New(gateway.Options{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout(),
		RateLimit:   cfg.API.RateLimit,
		Jar:         cookies,
		Transport:   r.transport,
		Credentials: r.creds,
		Bus:         r.bus,
		Logger:      r.logger,
	})

	r.device = device.NewCollector(r.kv, device.Options{
		AppVersion:   cfg.Device.AppVersion,
		IPLookupURL:  cfg.Device.IPLookupURL,
		GeoLookupURL: cfg.Device.GeoLookupURL,
		GeoTimeout:   cfg.Device.GeoTimeout(),
		Client:       &http.Client{Timeout: cfg.API.Timeout(), Transport: r.transport},
		Logger:       r.logger,
	})

	r.session, err = session.NewManager(session.Options{
		API:         r.gateway,
		Credentials: r.creds,
		Cookies:     cookies,
		KV:          r.kv,
		Device:      r.device,
		Bus:         r.bus,
		AdminRole:   cfg.Auth.AdminRole,
		Logger:      r.logger,
	})
	if err != nil {
		return err
	}

	r.guard = guard.New(r.session, r.logger)
	r.drafts = drafts.NewStore(r.kv, cfg.Stories.AllowedTags, r.logger)
	r.stories = stories.NewService(stories.Options{
		API:      r.gateway,
		KV:       r.kv,
		Drafts:   r.drafts,
		Tags:     cfg.Stories.AllowedTags,
		PageSize: cfg.Stories.PageSize,
		Logger:   r.logger,
	})
	r.exporter = tasks.NewExporter(r.stories)
	return nil
}

// SetLogger replaces the logger and rewires the services so they log through it.
func (r *Runner) SetLogger(ctx context.Context, l *log.Logger) error {
	r.logger = l
	if r.db == nil {
		return nil
	}
	return r.Wire(ctx)
}

// Close releases the session's subscriptions.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, storiesCommand, draftCommand, dashboardCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// requireUser verifies the stored credential and returns the active user.
func (r *Runner) requireUser(ctx context.Context) (session.User, error) {
	if r.session.CheckAuthStatus(ctx) != session.StateAuthenticated {
		return session.User{}, fmt.Errorf("%w: run `storydesk auth login` first", shared.ErrNotAuthenticated)
	}
	return r.session.ActiveUser(), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
