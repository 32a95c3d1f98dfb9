package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/internal/demo"
	"github.com/stripe/speedtracer/stores/badger"
	"github.com/stripe/speedtracer/stores/memory"
	"github.com/stripe/speedtracer/stores/s3"
)

var (
	configFile     = flag.String("f", "", "The config file to read for settings.")
	validateConfig = flag.Bool("validate-config", false, "Validate the config file is valid YAML with correct value types, then immediately exit.")
)

func main() {
	flag.Parse()

	if configFile == nil || *configFile == "" {
		logrus.Fatal("You must specify a config file")
	}

	conf, err := speedtracer.ReadConfig(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("Error reading config file")
	}

	if *validateConfig {
		os.Exit(0)
	}

	logger := logrus.StandardLogger()
	server, err := speedtracer.NewFromConfig(speedtracer.ServerConfig{
		Config: conf,
		Logger: logger,
		App:    demo.New(nil, logrus.NewEntry(logger).WithField("app", "demo")).Handler(),
		StoreTypes: speedtracer.StoreTypes{
			"badger": {
				Create:      badger.Create,
				ParseConfig: badger.ParseConfig,
			},
			"memory": {
				Create:      memory.Create,
				ParseConfig: memory.ParseConfig,
			},
			"s3": {
				Create:      s3.Create,
				ParseConfig: s3.ParseConfig,
			},
		},
	})
	if err != nil {
		e := err
		if conf.SentryDsn.Value != "" {
			err = sentry.Init(sentry.ClientOptions{
				Dsn: conf.SentryDsn.Value,
			})
			if err != nil {
				logrus.WithError(err).Error("Error initializing Sentry client")
			}

			event := sentry.NewEvent()
			event.Message = e.Error()
			hostname, _ := os.Hostname()
			if hostname != "" {
				event.ServerName = hostname
			}

			sentry.CaptureEvent(event)
			sentry.Flush(speedtracer.SentryFlushTimeout)
		}

		logrus.WithError(e).Fatal("Could not initialize server")
	}

	defer func() {
		server.ConsumePanic(recover())
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = server.Start(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Server exited with an error")
	}
}
