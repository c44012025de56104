package fieldlog

import "github.com/zeebo/errs"

var (
	// ConfigError is returned when the tracking configuration cannot be resolved.
	ConfigError = errs.Class("fieldlog config")
	// StorageError wraps failures to re-read entities or persist logs. It is
	// never silenced.
	StorageError = errs.Class("fieldlog storage")
	// CallbackError wraps a callback failure propagated to the mutation caller.
	CallbackError = errs.Class("fieldlog callback")
)
