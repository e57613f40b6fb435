// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net"
	"net/http"
	"os"

	"github.com/ManuGH/cutiesync/internal/clock"
	xglog "github.com/ManuGH/cutiesync/internal/log"
	"github.com/rs/zerolog"
)

// Deps carries optional overrides. The zero value is the production setup.
type Deps struct {
	// Version is reported in logs and the telemetry resource.
	Version string

	Clock clock.Clock

	// HTTPClient is used for backend calls, PushClient for the push channel.
	HTTPClient *http.Client
	PushClient *http.Client

	// Listener replaces listening on api.listenAddr.
	Listener net.Listener

	// ReloadSignal triggers a config reload, typically SIGHUP. Nil disables it.
	ReloadSignal os.Signal

	Logger *zerolog.Logger
}

func (d Deps) logger(component string) zerolog.Logger {
	if d.Logger != nil {
		return d.Logger.With().Str(xglog.FieldComponent, component).Logger()
	}
	return xglog.WithComponent(component)
}

// sub returns a pointer for option structs that take *zerolog.Logger, or nil
// so they fall back to the global logger.
func (d Deps) sub(component string) *zerolog.Logger {
	if d.Logger == nil {
		return nil
	}
	l := d.logger(component)
	return &l
}
