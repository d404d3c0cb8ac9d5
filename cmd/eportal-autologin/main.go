package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/aleksanaa/eportal-autologin/internal/cache"
	"github.com/aleksanaa/eportal-autologin/internal/config"
	"github.com/aleksanaa/eportal-autologin/internal/control"
	"github.com/aleksanaa/eportal-autologin/internal/eportal"
	"github.com/aleksanaa/eportal-autologin/internal/logging"
	"github.com/aleksanaa/eportal-autologin/internal/monitor"
	"github.com/aleksanaa/eportal-autologin/internal/notify"
)

const defaultConfigPath = "eportal.yaml"

type options struct {
	configPath string
	overrides  config.Overrides
	cachePath  string
	userIndex  string
	once       bool
	logout     bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to the YAML config, defaults to $EPORTAL_CONFIG or ./eportal.yaml")
	flag.StringVar(&o.overrides.Username, "name", "", "Account name, usually student or phone number")
	flag.StringVar(&o.overrides.Password, "passwd", "", "Password to the account")
	flag.StringVar(&o.overrides.ServerHost, "host", "", "Host of the portal server, usually ip address")
	flag.StringVar(&o.overrides.LocalIP, "localip", "", "Local IP address to bind to")
	flag.StringVar(&o.cachePath, "cache", "", "Where to read and store the session cache, blank to use the config value")
	flag.StringVar(&o.userIndex, "index", "", "User Index of user, only for logging out")
	flag.BoolVar(&o.once, "once", false, "Run a single check and exit")
	flag.BoolVar(&o.logout, "logout", false, "Whether to log out current user")
	flag.Parse()
	return o
}

func loadConfig(path string) (config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("EPORTAL_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return cfg, err
}

func main() {
	os.Exit(run())
}

func run() int {
	o := parseFlags()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 2
	}
	cfg = cfg.With(o.overrides)
	if o.cachePath != "" {
		cfg.CachePath = o.cachePath
	}

	log, ring, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	var clientOpts []eportal.Option
	if cfg.LocalIP != "" {
		clientOpts = append(clientOpts, eportal.WithLocalIP(cfg.LocalIP))
	}
	client, err := eportal.NewClient(log.Named("http"), clientOpts...)
	if err != nil {
		log.Error("init client", zap.Error(err))
		return 2
	}

	if o.logout {
		return runLogout(log, client, cfg, o)
	}

	if cfg.Password == "" && cfg.Username != "" {
		if pw, ok := promptPassword(); ok {
			cfg.Password = pw
		}
	}

	auth := eportal.NewAuthenticator(client, log.Named("auth"))
	if o.once {
		return runOnce(log, auth, cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runDaemon(ctx, log, ring, auth, cfg)
}

func promptPassword() (string, bool) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil || len(b) == 0 {
		return "", false
	}
	return string(b), true
}

func runOnce(log *zap.Logger, auth monitor.Attempter, cfg config.Config) int {
	out := auth.Attempt(context.Background(), cfg.Credentials(), cfg.Endpoints())
	saveSession(log, cfg.CachePath, out)
	if !out.Ok() {
		log.Error("check failed: " + out.String())
		return 1
	}
	log.Info(out.String())
	return 0
}

func runLogout(log *zap.Logger, client *eportal.Client, cfg config.Config, o options) int {
	entry, err := cache.Load(cfg.CachePath)
	if err != nil {
		log.Error("load cache", zap.Error(err))
		return 1
	}
	idx := o.userIndex
	if idx == "" {
		idx = entry.UserIndex
	}
	if o.overrides.ServerHost == "" && entry.ServerHost != "" {
		cfg.ServerHost = entry.ServerHost
	}
	if idx == "" {
		log.Error("Not enough argument for logout. See --help for explanation")
		return 2
	}
	if err := client.Logout(context.Background(), cfg.Endpoints(), idx); err != nil {
		log.Error("logout failed", zap.Error(err))
		return 1
	}
	log.Info("logged out", zap.String("host", cfg.ServerHost))
	return 0
}

type daemon struct {
	mon     *monitor.Monitor
	handler http.Handler
	closers []func() error
}

func newDaemon(log *zap.Logger, logs control.LogSource, auth monitor.Attempter, cfg config.Config) (*daemon, error) {
	d := &daemon{}
	observers := []monitor.Observer{
		notify.NewLogObserver(log.Named("status")),
		cacheObserver(log, cfg.CachePath),
	}
	if rc := cfg.Notify.Redis; rc.Addr != "" {
		password := ""
		if rc.AuthRef != "" {
			p, err := config.ResolveSecret(rc.AuthRef)
			if err != nil {
				return nil, fmt.Errorf("redis auth: %w", err)
			}
			password = p
		}
		pub := notify.NewRedisPublisher(notify.RedisOptions{
			Addr:     rc.Addr,
			Password: password,
			DB:       rc.DB,
			Channel:  rc.Channel,
		}, log.Named("redis"))
		d.closers = append(d.closers, pub.Close)
		observers = append(observers, pub)
	}

	d.mon = monitor.New(auth, log.Named("monitor"), observers...)
	d.handler = control.New(d.mon, logs, cfg, log.Named("control")).Router()
	return d, nil
}

func (d *daemon) close() {
	for _, c := range d.closers {
		_ = c()
	}
}

func runDaemon(ctx context.Context, log *zap.Logger, ring *logging.Ring, auth monitor.Attempter, cfg config.Config) int {
	d, err := newDaemon(log, ring, auth, cfg)
	if err != nil {
		log.Error("init daemon", zap.Error(err))
		return 2
	}
	defer d.close()

	var srv *http.Server
	if !cfg.Control.Disabled {
		srv = &http.Server{
			Addr:              cfg.Control.Listen,
			Handler:           d.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("control api listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("control api", zap.Error(err))
			}
		}()
	}

	settings := monitor.Settings{
		Credentials: cfg.Credentials(),
		Endpoints:   cfg.Endpoints(),
		Interval:    cfg.Interval(),
	}
	if eportal.Validate(settings.Credentials, settings.Endpoints) == nil {
		d.mon.Start(settings)
	} else {
		log.Info("credentials incomplete, waiting for a start request")
	}

	<-ctx.Done()

	d.mon.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return 0
}

// cacheObserver saves the session of every successful login so that
// -logout can end it later.
func cacheObserver(log *zap.Logger, path string) monitor.Observer {
	return monitor.ObserverFunc(func(s monitor.Status) {
		if s.Event == monitor.EventAttempted && s.LastOutcome != nil {
			saveSession(log, path, *s.LastOutcome)
		}
	})
}

func saveSession(log *zap.Logger, path string, out eportal.Outcome) {
	if path == "" || out.Kind != eportal.OutcomeAuthSucceeded || out.UserIndex == "" {
		return
	}
	err := cache.Save(path, cache.Entry{
		Username:   out.Username,
		ServerHost: out.ServerHost,
		UserIndex:  out.UserIndex,
	})
	if err != nil {
		log.Warn("save cache", zap.Error(err))
	}
}
