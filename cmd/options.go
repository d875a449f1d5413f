package cmd

import (
	"os"

	"github.com/forgesync/forgesync/config"
	"github.com/forgesync/forgesync/internal/log"
	"github.com/forgesync/forgesync/internal/store"
)

// Options holds the shared command-line options for the forgesync CLI.
type Options struct {
	Verbosity int
}

// setup initializes logging and loads the configuration.
func (o *Options) setup() (*config.Config, error) {
	log.Initialize(o.Verbosity, os.Stderr)
	return config.Load()
}

// openStore loads the configuration and opens the metadata store.
func (o *Options) openStore() (*config.Config, *store.Store, error) {
	cfg, err := o.setup()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
