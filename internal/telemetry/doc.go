// Package telemetry reports errors and panics to Sentry.
//
// Reporting is off until Init is called with a non-empty DSN; every other
// function is safe to call either way. Events are scrubbed before they are
// sent so client addresses, viewer IDs and credentials never leave the
// process.
//
//	if err := telemetry.Init(config.SentryDSN, startup.Version); err != nil {
//	    logging.Warn("Sentry disabled: %v", err)
//	}
//	defer telemetry.Flush()
package telemetry
