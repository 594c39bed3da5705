package cli

import (
	"io"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/libris/libris-server/internal/config"
	"github.com/libris/libris-server/internal/di"
	"github.com/libris/libris-server/internal/di/providers"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/logger"
	"github.com/libris/libris-server/internal/service"
)

// operator is the principal libctl acts as. It is an admin with no account row.
var operator = domain.AdminPrincipal(&domain.Admin{Username: "libctl"})

// app is an opened data directory.
type app struct {
	injector *do.RootScope
	cfg      *config.Config
	log      *logger.Logger
}

// openApp loads configuration the way the server does, with the root flags
// taking the place of server flags, and builds a tool container on it.
// Diagnostics go to errOut so they never mix with command output.
func openApp(opts *RootOptions, errOut io.Writer) (*app, error) {
	args := []string{"--env-file", opts.EnvFile}
	if opts.DataDir != "" {
		args = append(args, "--data-dir", opts.DataDir)
	}
	if opts.DBPath != "" {
		args = append(args, "--db-path", opts.DBPath)
	}
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{
		Writer:      errOut,
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       level,
	})

	return &app{
		injector: di.NewToolContainer(cfg, log),
		cfg:      cfg,
		log:      log,
	}, nil
}

// Close shuts every opened component down.
func (a *app) Close() {
	if report := a.injector.Shutdown(); !report.Succeed {
		a.log.Warn("Shutdown error", "error", report)
	}
}

func (a *app) catalog() (*service.CatalogService, error) {
	return do.Invoke[*service.CatalogService](a.injector)
}

func (a *app) ledger() (*service.LedgerService, error) {
	return do.Invoke[*service.LedgerService](a.injector)
}

func (a *app) readers() (*service.ReaderService, error) {
	return do.Invoke[*service.ReaderService](a.injector)
}

func (a *app) auth() (*service.AuthService, error) {
	return do.Invoke[*service.AuthService](a.injector)
}

func (a *app) auditLog() (*providers.AuditLogHandle, error) {
	return do.Invoke[*providers.AuditLogHandle](a.injector)
}
