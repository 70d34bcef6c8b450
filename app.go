package simphttpd

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const maxPort = 65535

// New creates an App from config. The config is copied and never changes afterwards.
func New(config Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.CGIExtensions = append([]string(nil), config.CGIExtensions...)
	return &App{
		config:    config,
		fs:        afero.NewOsFs(),
		logger:    logrus.StandardLogger(),
		admission: newAdmission(config.MaxClients, config.AcceptRate),
	}, nil
}

func (app *App) SetLogger(logger logrus.FieldLogger) { // every connection logs through logger
	app.logger = logger
}

func (app *App) SetFs(fs afero.Fs) { // serve static files from fs instead of the host filesystem
	app.fs = fs
}

// Register binds function to an exact URL path. Registration must be finished before Serve or Run;
// the table is only read once connections are accepted.
func (app *App) Register(function CGIFunc, path string) {
	app.cgi = append(app.cgi, cgiEntry{path: path, function: function})
}

func (table cgiTable) lookup(path string) (CGIFunc, bool) {
	for _, entry := range table {
		if entry.path == path {
			return entry.function, true
		}
	}
	return nil, false
}

func (app *App) Config() Config {
	return app.config
}

func (app *App) Stats() Stats {
	return Stats{
		InFlight: app.inFlight.Load(),
		Served:   app.served.Load(),
	}
}

// Run serves on Port, or on one of the next PortRetries ports when listening fails.
// An accept failure moves on to the next port as well. Run returns nil once ctx is done.
func (app *App) Run(ctx context.Context) error {
	first, last := app.config.Port, min(app.config.Port+app.config.PortRetries, maxPort)
	if first == 0 {
		last = 0
	}
	for port := first; port <= last; port++ {
		listener, err := Listen(app.config.Host, port)
		if err != nil {
			app.logger.WithError(err).Warnf("cannot listen on port %d", port)
			continue
		}
		app.logger.Infof("server is running, port: http://%s", listener.Addr())
		err = app.Serve(ctx, listener)
		if ctx.Err() != nil {
			app.logger.Info("server stopped")
			return nil
		}
		app.logger.WithError(err).Warn("server failed, moving to the next port")
	}
	return fmt.Errorf("no usable port in %d..%d", first, last)
}

// Serve runs the accept loop. A permit is taken before every accept, so the loop stalls
// while MaxClients connections are in flight. Serve closes listener and waits for all
// workers before it returns; it returns nil when ctx ends the loop.
func (app *App) Serve(ctx context.Context, listener net.Listener) error {
	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
		listener.Close()
		app.workers.Wait()
	}()

	for {
		if err := app.admission.acquire(ctx); err != nil {
			return nil
		}
		conn, err := listener.Accept()
		if err != nil {
			app.admission.release()
			if ctx.Err() != nil {
				return nil
			}
			app.logger.WithError(err).Error("accept error")
			return newError(AcceptError, err)
		}
		app.inFlight.Add(1)
		app.workers.Add(1)
		go app.serveConn(ctx, conn)
	}
}
