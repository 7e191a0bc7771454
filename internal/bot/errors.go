package bot

import "errors"

var (
	// ErrDeliveryFailed wraps a reply or deletion the transport could not perform.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrUnauthorized marks an admin-only action requested by someone else.
	ErrUnauthorized = errors.New("admin only")
	// ErrUnsupportedArgument marks a command argument outside the accepted set.
	ErrUnsupportedArgument = errors.New("unsupported argument")
	// ErrMissingArgument marks a command that needs an argument but got none.
	ErrMissingArgument = errors.New("missing argument")
)
