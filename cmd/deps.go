// Package cmd provides CLI commands for the vidq tool.
package cmd

import (
	"errors"

	"github.com/otherjamesbrown/vidq/config"
	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// AppCommandDeps holds the dependencies for commands that use the
// assistant, the store or the servers.
type AppCommandDeps struct {
	Config     *config.CLIConfig
	Logger     logging.Logger
	LoadConfig func() (*config.CLIConfig, error)
	OpenApp    func(*config.CLIConfig, logging.Logger) (*app.App, error)
}

// DefaultAppDeps returns the default dependencies for production use.
func DefaultAppDeps() *AppCommandDeps {
	return &AppCommandDeps{
		LoadConfig: config.LoadConfig,
		OpenApp:    OpenApp,
	}
}

// OpenApp builds the app from configuration.
func OpenApp(cfg *config.CLIConfig, logger logging.Logger) (*app.App, error) {
	return app.New(app.Options{Config: cfg, Logger: logger})
}

// loadConfig returns the loaded configuration, loading it on first use.
func (d *AppCommandDeps) loadConfig() (*config.CLIConfig, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		return nil, errors.New("no configuration loader")
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, err
	}
	d.Config = cfg
	return cfg, nil
}

func (d *AppCommandDeps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

// open loads configuration and opens the app. The caller closes the app.
func (d *AppCommandDeps) open() (*app.App, *config.CLIConfig, error) {
	cfg, err := d.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	openApp := d.OpenApp
	if openApp == nil {
		openApp = OpenApp
	}
	a, err := openApp(cfg, d.logger())
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}
