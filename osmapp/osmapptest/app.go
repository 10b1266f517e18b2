// Package osmapptest provides test helpers for osmapp applications.
//
// It constructs the identical DI graph as [osmapp.NewApp] but uses
// [fxtest.App] which fails the test immediately on DI errors.
//
// Example:
//
//	osmapptest.SetBaseEnv(t, 18081).Snapshot("testdata/small.osm")
//	app := osmapptest.New[osmapp.BaseEnvironment](t)
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package osmapptest

import (
	"testing"

	"github.com/advdv/osmhttp/osmapp"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing osmapp applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [osmapp.NewApp].
func New[E osmapp.Environment](t testing.TB, opts ...osmapp.Option) *App {
	return &App{App: fxtest.New(t, osmapp.FxOptions[E](opts...)...)}
}
