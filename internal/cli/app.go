package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fintrack/internal/aggregator"
	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/backend"
	"fintrack/internal/backend/sample"
	"fintrack/internal/config"
	"fintrack/internal/export"
	"fintrack/internal/export/sheets"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/session"
	"fintrack/internal/storage"
)

var ErrExportNotConfigured = errors.New("export is not configured: set GOOGLE_SPREADSHEET_ID")

// App is one client: a session over the configured store, a backend that
// follows it, and the aggregator on top.
type App struct {
	Config        *config.Config
	Logger        *log.Logger
	Store         storage.Store
	Client        *api.Client
	Session       *session.Manager
	Backend       *backend.Switch
	Aggregator    *aggregator.Aggregator
	Notifications *notify.Buffer

	publisher *amqp.Client
}

type appOptions struct {
	httpClient *http.Client
	source     string
	now        func() time.Time
}

type AppOption func(*appOptions)

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(c *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = c }
}

// WithSource names the program in published notifications.
func WithSource(source string) AppOption {
	return func(o *appOptions) { o.source = source }
}

func WithClock(now func() time.Time) AppOption {
	return func(o *appOptions) { o.now = now }
}

// NewApp wires the client together. The store is owned by the app from
// here on and closed by Close. An unreachable AMQP broker is logged and
// skipped; notifications still reach the log and the buffer.
func NewApp(cfg *config.Config, logger *log.Logger, store storage.Store, opts ...AppOption) (*App, error) {
	o := appOptions{source: "fintrack", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	execOpts := []api.Option{api.WithLogger(logger)}
	if o.httpClient != nil {
		execOpts = append(execOpts, api.WithHTTPClient(o.httpClient))
	}
	exec, err := api.NewExecutor(cfg.APIBaseURL, cfg.APITimeout, execOpts...)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(exec)

	sess := session.NewManager(client, store, session.WithLogger(logger), session.WithClock(o.now))
	exec.SetTokenSource(sess.Token)
	exec.SetUnauthorizedFunc(sess.HandleUnauthorized)

	sw := backend.NewSwitch(client, sample.New(o.now), sess.IsAuthenticated, logger)

	app := &App{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Client:        client,
		Session:       sess,
		Backend:       sw,
		Notifications: notify.NewBuffer(50),
	}

	notifiers := notify.Multi{app.Notifications, notify.NewLogNotifier(logger)}
	if cfg.NotificationsEnabled() {
		pub, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, o.source, logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.Warn("AMQP unavailable, notifications stay local", log.FieldError, err.Error())
		} else {
			app.publisher = pub
			notifiers = append(notifiers, pub)
		}
	}

	app.Aggregator = aggregator.New(sw,
		aggregator.Config{CacheTTL: cfg.CacheTTL, CacheSize: cfg.CacheSize},
		aggregator.WithLogger(logger),
		aggregator.WithNotifier(notifiers),
		aggregator.WithClock(o.now))
	app.Aggregator.BindSession(sess)
	return app, nil
}

// Start restores the persisted session. With watch set it also keeps
// checking token expiry and sweeping expired cache entries until ctx is
// done.
func (a *App) Start(ctx context.Context, watch bool) session.Snapshot {
	snap := a.Session.Restore(ctx)
	a.Logger.DebugContext(ctx, "Session restored",
		log.FieldState, snap.State.String(),
		log.FieldOperation, log.OpRestore)
	if watch {
		go a.Session.WatchExpiry(ctx, a.Config.SessionCheckInterval)
		if a.Config.CacheTTL > 0 {
			a.Aggregator.StartCacheCleanup(a.Config.CacheTTL)
		}
	}
	return snap
}

// Exporter returns the spreadsheet writer configured for this app.
func (a *App) Exporter(ctx context.Context) (export.Writer, error) {
	if !a.Config.ExportEnabled() {
		return nil, ErrExportNotConfigured
	}
	return sheets.New(ctx, sheets.Config{
		SpreadsheetID:   a.Config.GoogleSpreadsheetID,
		SheetName:       a.Config.GoogleSheetName,
		CredentialsJSON: a.Config.GoogleServiceAccountJSON,
		CredentialsFile: a.Config.GoogleServiceAccountFile,
		OAuth: sheets.OAuth{
			ClientJSON: a.Config.GoogleOAuthClientJSON,
			ClientFile: a.Config.GoogleOAuthClientFile,
			TokenFile:  a.Config.GoogleOAuthTokenFile,
		},
	}, a.Logger)
}

func (a *App) Close() error {
	a.Aggregator.Close()
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
