// Package handler holds the contracts between request processing and the endpoints of the API. A handler is
// created per request from its route, it validates the request and decides which responder produces the body.
package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
)

// Handler serves one endpoint.
type Handler interface {
	// LogName identifies the endpoint in logs and metrics.
	LogName() string
	AllowedMethods() osmhttp.Method
	// Responder validates the request against the data and returns what to respond with.
	Responder(ctx context.Context, sel selection.Selection) (responder.Responder, error)
}

// PayloadHandler is a handler that also accepts a request body to change data.
type PayloadHandler interface {
	Handler

	// PayloadResponder applies the payload within upd. The responder it returns is used unless a selection
	// after the update is required.
	PayloadResponder(ctx context.Context, upd selection.Update, payload []byte) (responder.Responder, error)
	// RequiresSelectionAfterUpdate makes the response be produced by Responder on a fresh selection once the
	// update was committed.
	RequiresSelectionAfterUpdate() bool
}

// Constructor creates the handler for a routed request. Errors are reported to the client.
type Constructor func(r *http.Request) (Handler, error)

// Registrar is where constructors are registered for route patterns.
type Registrar interface {
	Handle(pattern string, c Constructor)
}

// Identity is the client as far as it was authenticated.
type Identity struct {
	UserID        int64
	Authenticated bool
	AllowWrite    bool
	Roles         []selection.Role
}

// IsModerator reports whether the user holds the moderator role. Administrators without it are not
// moderators.
func (id Identity) IsModerator() bool {
	return slices.Contains(id.Roles, selection.RoleModerator)
}

// ctxKey is the key type for context values.
type ctxKey int

const (
	ctxKeyIdentity ctxKey = iota
)

// WithIdentity returns a context that carries the identity of the client.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFrom returns the identity in the context, it is anonymous if there is none.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(Identity)
	return id
}
