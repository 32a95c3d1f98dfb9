package speedtracer

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// SentryFlushTimeout bounds how long a fatal report may hold up the
// process before it exits.
const SentryFlushTimeout = 10 * time.Second

// call inside deferred recover, eg
// defer func() {
// 	ConsumePanic(recover())
// }
// will report panic to sentry, print stack and then repanic (to ensure your program terminates)
func (s *Server) ConsumePanic(err interface{}) {
	if err == nil {
		return
	}

	if s.sentry != nil {
		event := sentry.NewEvent()
		event.Level = sentry.LevelFatal
		event.ServerName = s.Hostname
		event.Message = panicMessage(err)
		event.Exception = []sentry.Exception{{
			Type:       "panic",
			Value:      event.Message,
			Stacktrace: sentry.NewStacktrace(),
		}}
		s.sentry.CaptureEvent(event)
		// we don't want the program to terminate before reporting to sentry
		s.sentry.Flush(SentryFlushTimeout)
	}

	panic(err)
}

func panicMessage(err interface{}) string {
	switch e := err.(type) {
	case string:
		return e
	case error:
		return e.Error()
	case fmt.Stringer:
		return e.String()
	default:
		return fmt.Sprintf("%#v", e)
	}
}

// logrus hook to send error/fatal/panic messages to sentry
type sentryHook struct {
	hub      *sentry.Hub
	hostname string
	lv       []logrus.Level
}

var _ logrus.Hook = sentryHook{}

func (s sentryHook) Levels() []logrus.Level {
	return s.lv
}

func (s sentryHook) Fire(e *logrus.Entry) error {
	event := sentry.NewEvent()
	event.ServerName = s.hostname

	if err, ok := e.Data[logrus.ErrorKey].(error); ok {
		event.Message = err.Error()
	} else {
		event.Message = e.Message
	}

	event.Extra = make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			continue // already handled this key, don't put it into the Extra hash
		}
		event.Extra[k] = v
	}
	if event.Message != e.Message && e.Message != "" {
		event.Extra["log_message"] = e.Message
	}

	switch e.Level {
	case logrus.FatalLevel, logrus.PanicLevel:
		event.Level = sentry.LevelFatal
	case logrus.ErrorLevel:
		event.Level = sentry.LevelError
	case logrus.WarnLevel:
		event.Level = sentry.LevelWarning
	case logrus.InfoLevel:
		event.Level = sentry.LevelInfo
	case logrus.DebugLevel, logrus.TraceLevel:
		event.Level = sentry.LevelDebug
	}

	s.hub.CaptureEvent(event)

	if e.Level == logrus.PanicLevel || e.Level == logrus.FatalLevel {
		// we don't want the program to terminate before reporting to sentry
		s.hub.Flush(SentryFlushTimeout)
	}
	return nil
}
