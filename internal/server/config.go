package server

import (
	"github.com/raysh454/netaudit/internal/app"
	"github.com/raysh454/netaudit/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address; empty falls back to
	// AppConfig.ServerCfg.ListenAddr.
	ListenAddr string

	// AppConfig supplies the storage root and runner limits. Nil means
	// app.DefaultConfig().
	AppConfig *app.Config

	Logger logging.Logger
}
