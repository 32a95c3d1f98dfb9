package speedtracer

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer/scopedstatsd"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/trace"
	"github.com/stripe/speedtracer/util/build"
)

var profileStartOnce = sync.Once{}

// StoreConfig is the parsed, backend specific part of the store
// configuration.
type StoreConfig interface{}

// StoreTypes maps a store kind to the functions that parse its config and
// create it.
type StoreTypes = map[string]struct {
	Create func(
		name string, logger *logrus.Entry, config Config, storeConfig StoreConfig,
	) (stores.Store, error)
	ParseConfig func(name string, config interface{}) (StoreConfig, error)
}

type ServerConfig struct {
	Config Config
	Logger *logrus.Logger
	// App is the application whose requests are traced.
	App        http.Handler
	StoreTypes StoreTypes
}

// A Server hosts the traced application next to the trace retrieval
// endpoint and its own health and debugging routes.
type Server struct {
	Config     Config
	Hostname   string
	Middleware *Middleware
	Statsd     scopedstatsd.Client
	Store      stores.Store

	app             http.Handler
	enableProfiling bool
	httpAddress     string
	httpListener    net.Listener
	httpServer      http.Server
	logger          *logrus.Entry
	ready           chan struct{}
	sentry          *sentry.Hub
	shutdownTimeout time.Duration
	tlsConfig       *cryptotls.Config
}

// NewFromConfig creates a new speedtracer server from config and sets up
// the passed logger according to it.
func NewFromConfig(config ServerConfig) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conf := config.Config

	hostname, _ := os.Hostname()
	server := &Server{
		Config:          conf,
		Hostname:        hostname,
		app:             config.App,
		enableProfiling: conf.EnableProfiling,
		httpAddress:     conf.HTTPAddress,
		logger:          logrus.NewEntry(logger),
		ready:           make(chan struct{}),
		shutdownTimeout: conf.ShutdownTimeout,
	}
	if server.app == nil {
		server.app = http.NotFoundHandler()
	}

	if conf.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if conf.SentryDsn.Value != "" {
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:        conf.SentryDsn.Value,
			ServerName: hostname,
			Release:    build.VERSION,
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating sentry client")
		}
		server.sentry = sentry.NewHub(client, sentry.NewScope())
		logger.AddHook(sentryHook{
			hub:      server.sentry,
			hostname: hostname,
			lv: []logrus.Level{
				logrus.ErrorLevel,
				logrus.FatalLevel,
				logrus.PanicLevel,
			},
		})
	}

	if conf.StatsAddress != "" {
		stats, err := statsd.New(conf.StatsAddress, statsd.WithoutTelemetry(), statsd.WithMaxMessagesPerPayload(4096))
		if err != nil {
			return nil, errors.Wrap(err, "creating statsd client")
		}
		stats.Namespace = "speedtracer."
		server.Statsd = scopedstatsd.NewClient(stats, conf.Tags)
	}
	server.Statsd = scopedstatsd.Ensure(server.Statsd)

	var err error
	server.tlsConfig, err = conf.TLS.GetServerTlsConfig()
	if err != nil {
		return nil, errors.Wrap(err, "loading tls config")
	}

	filter, err := trace.NewFilter(conf.FilterConfig(), server.logger)
	if err != nil {
		return nil, err
	}

	server.Store, err = server.createStore(&server.Config, config.StoreTypes)
	if err != nil {
		return nil, err
	}

	server.Middleware = NewMiddleware(MiddlewareConfig{
		CachePrefix: conf.CachePrefix,
		TraceURL:    conf.TraceURL,
		TTL:         conf.TraceTTLDuration(),
		Debug:       conf.Debug,
		Filter:      filter,
		Store:       server.Store,
		Statsd:      server.Statsd,
		Logger:      server.logger,
	})
	server.httpServer = http.Server{
		Handler:   server.Handler(),
		TLSConfig: server.tlsConfig,
	}

	return server, nil
}

// createStore parses the configured store's settings and creates it. The
// parsed settings replace the raw map in config.
func (s *Server) createStore(
	config *Config, storeTypes StoreTypes,
) (stores.Store, error) {
	storeConfig := &config.Store
	storeFactory, ok := storeTypes[storeConfig.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown store kind %s", storeConfig.Kind)
	}
	parsedConfig, err := storeFactory.ParseConfig(storeConfig.Name, storeConfig.Config)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing config for store %s", storeConfig.Name)
	}
	// Overwrite the map config with the parsed config. This prevents
	// secrets from being exposed by the config endpoints.
	storeConfig.Config = parsedConfig

	logger := s.logger.WithFields(logrus.Fields{
		"store":      storeConfig.Name,
		"store_kind": storeConfig.Kind,
	})
	store, err := storeFactory.Create(storeConfig.Name, logger, *config, parsedConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "creating store %s", storeConfig.Name)
	}
	logger.Info("Created trace store")
	return store, nil
}

// Start listens on the configured address and serves until ctx is
// cancelled or the listener fails, then closes the store.
func (s *Server) Start(ctx context.Context) error {
	var err error
	s.httpListener, err = net.Listen("tcp", s.httpAddress)
	if err != nil {
		return err
	}
	if s.tlsConfig != nil {
		s.httpListener = cryptotls.NewListener(s.httpListener, s.tlsConfig)
	}

	if s.enableProfiling {
		var prf interface{ Stop() }
		profileStartOnce.Do(func() {
			prf = profile.Start()
		})
		if prf != nil {
			defer prf.Stop()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.WithFields(logrus.Fields{
		"version":   build.VERSION,
		"address":   s.httpListener.Addr(),
		"trace_url": s.Config.TraceURL,
		"tls":       s.tlsConfig != nil,
	}).Info("Starting server")

	waitGroup := sync.WaitGroup{}
	httpError := startHttpServer(
		ctx, cancel, s.logger, &waitGroup,
		&s.httpServer, s.httpListener, s.shutdownTimeout)

	close(s.ready)

	// Wait for shut down.
	waitGroup.Wait()
	httpErr := <-httpError

	err = s.Store.Close()
	if err != nil {
		s.logger.WithError(err).Error("error closing trace store")
	}
	if s.sentry != nil {
		s.sentry.Flush(SentryFlushTimeout)
	}

	if httpErr != nil {
		return errors.New("error shutting down")
	}
	return nil
}

func startHttpServer(
	ctx context.Context, cancel func(), logger *logrus.Entry,
	waitGroup *sync.WaitGroup, server *http.Server, listener net.Listener,
	shutdownTimeout time.Duration,
) <-chan (error) {
	// Start server
	httpExit := make(chan error, 1)
	logger.WithField("address", listener.Addr()).Debug("serving http")
	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()

		err := server.Serve(listener)
		if err != http.ErrServerClosed {
			logger.WithError(err).Error("http server closed")
		} else {
			logger.Debug("http server closed")
		}
		httpExit <- err
	}()

	// Handle shutdown
	httpError := make(chan error, 1)
	waitGroup.Add(1)
	go func() {
		defer func() {
			listener.Close()
			close(httpError)
			waitGroup.Done()
		}()

		select {
		case err := <-httpExit:
			cancel()
			httpError <- err
			return
		case <-ctx.Done():
			logger.Info("shutting down http server")
			ctx, shutdownCancel :=
				context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()

			err := server.Shutdown(ctx)
			if err != nil {
				logger.WithError(err).Error("error shuting down http server")
				httpError <- err
			}
			return
		}
	}()

	return httpError
}

// Ready returns a channel that is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) GetHttpAddress() net.Addr {
	return s.httpListener.Addr()
}
