package source

import (
	"context"
	"errors"
	"net"

	"github.com/sardine-ai/go-remote-flags/model"
)

// Source fetches the flag listing for one configuration. Implementations
// perform I/O only; they never touch client state.
type Source interface {
	// GetName returns the name of the source, used in logs and errors.
	GetName() string
	// Fetch retrieves the listing for req.Config. When req.Validator matches
	// the current remote state the result has NotModified set. Failures are
	// returned as *model.TransportError; a fetch abandoned because ctx was
	// cancelled returns the context error instead.
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Request is a conditional fetch of the flags for Config.
type Request struct {
	Config    model.Config
	Validator string // empty for an unconditional fetch
}

// Result is a successful fetch: either a fresh payload with its validator, or
// NotModified.
type Result struct {
	Payload     []byte
	Validator   string
	NotModified bool
}

// Updated returns a Result carrying a new payload.
func Updated(payload []byte, validator string) Result {
	return Result{Payload: payload, Validator: validator}
}

// NotModified returns a Result signalling that the remote state is unchanged.
func NotModified() Result {
	return Result{NotModified: true}
}

// transportError classifies err into a *model.TransportError for source name.
func transportError(name, reason string, err error) *model.TransportError {
	if reason == model.ReasonNetwork {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			reason = model.ReasonTimeout
		}
	}
	return &model.TransportError{Source: name, Reason: reason, Err: err}
}
