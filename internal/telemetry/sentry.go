package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"media-forensics/internal/logging"
)

const (
	serviceName  = "media-forensics"
	flushTimeout = 2 * time.Second
	redacted     = "[redacted]"
)

// sensitiveHeaders are dropped from captured requests.
var sensitiveHeaders = map[string]bool{
	"Authorization":   true,
	"Cookie":          true,
	"X-User-Id":       true,
	"X-Forwarded-For": true,
	"X-Real-Ip":       true,
}

// Init configures the Sentry client. An empty dsn leaves reporting disabled.
func Init(dsn, release string) error {
	if dsn == "" {
		logging.Debug("SENTRY_DSN not set, error reporting disabled")
		return nil
	}

	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
		Tags:             map[string]string{"service": serviceName},
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	logging.Info("Error reporting enabled (environment %s)", env)
	return nil
}

// CaptureError reports err with the given tags. A nil err is ignored.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits briefly for buffered events. Call before exit.
func Flush() {
	sentry.Flush(flushTimeout)
}

// Recovery returns middleware that turns a handler panic into a 500 and
// reports it.
func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				logging.Error("Panic serving %s %s: %v", r.Method, r.URL.Path, err)

				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetTag("panic", "true")
				hub.CaptureException(err)

				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// scrub removes viewer-identifying data from an event.
func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	event.User.IPAddress = ""
	event.User.ID = ""

	if event.Request != nil {
		for k := range event.Request.Headers {
			if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
				event.Request.Headers[k] = redacted
			}
		}
		if event.Request.QueryString != "" {
			event.Request.QueryString = redacted
		}
		if event.Request.Cookies != "" {
			event.Request.Cookies = redacted
		}
		delete(event.Request.Env, "REMOTE_ADDR")
	}
	return event
}
