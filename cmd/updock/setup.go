package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"updock/config"
	dockeradapter "updock/internal/adapter/docker"
	"updock/internal/engine"
	"updock/internal/ledger"
)

// toolkit bundles everything a command needs to run the engine.
type toolkit struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	engine *engine.Engine
}

// setup loads config, opens the ledger, and connects to the Docker engine.
// Callers must Close the toolkit.
func setup(cmd *cobra.Command, force bool) (*toolkit, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	ledgerPath := cfg.Ledger
	if override, _ := cmd.Flags().GetString("ledger"); override != "" {
		ledgerPath = override
	}
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return nil, err
	}

	rt, err := dockeradapter.NewRuntime()
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}

	return &toolkit{
		cfg:    cfg,
		ledger: led,
		engine: &engine.Engine{
			Runtime: rt,
			Ledger:  led,
			Force:   force || cfg.ForceOnDrift(),
		},
	}, nil
}

func (t *toolkit) Close() {
	_ = t.engine.Runtime.Close()
}
