package main

import (
	"flag"
	"fmt"

	"github.com/sufield/fedtrust/internal/config"
)

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: fedentity validate <config-file>")
	}

	path := fs.Arg(0)
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s: configuration is valid\n", path)
	fmt.Printf("  entity_id:     %s\n", cfg.EntityID)
	fmt.Printf("  listen_addr:   %s\n", cfg.ListenAddr)
	fmt.Printf("  trust_anchors: %d\n", len(cfg.TrustAnchors))
	fmt.Printf("  subordinates:  %d\n", len(cfg.Subordinates))
	return nil
}
