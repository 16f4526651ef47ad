package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	versionInfo := VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	registry := NewCommandRegistry(versionInfo)
	registerCommands(registry)

	if err := registry.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerCommands(r *CommandRegistry) {
	r.Register(&Command{
		Name:        "serve",
		Description: "Serve this entity's federation endpoints",
		Usage:       "fedentity serve --config <config-file> [flags]",
		Examples: []string{
			"fedentity serve --config ./fedentity.yaml",
			"fedentity serve --config ./fedentity.yaml --debug",
		},
		Run: serveCommand,
	})

	r.Register(&Command{
		Name:        "resolve",
		Description: "Resolve and print a trust chain for an entity",
		Usage:       "fedentity resolve --sub <entity-id> --trust-anchor <entity-id> [flags]",
		Examples: []string{
			"fedentity resolve --sub https://rp.example.org --trust-anchor https://ta.example.org",
			"fedentity resolve --sub https://rp.example.org --trust-anchor https://ta.example.org --max-depth 5",
		},
		Run: resolveCommand,
	})

	r.Register(&Command{
		Name:        "validate",
		Description: "Validate a fedentity configuration file",
		Usage:       "fedentity validate <config-file>",
		Examples: []string{
			"fedentity validate ./fedentity.yaml",
		},
		Run: validateCommand,
	})

	r.Register(&Command{
		Name:        "keygen",
		Description: "Generate a federation signing key (EC P-256 JWK)",
		Usage:       "fedentity keygen [flags]",
		Examples: []string{
			"fedentity keygen --out ./entity-key.jwk",
			"fedentity keygen --out ./entity-key.jwk --public ./entity-jwks.json",
		},
		Run: keygenCommand,
	})

	r.Register(&Command{
		Name:        "version",
		Description: "Show version information",
		Usage:       "fedentity version",
		Examples: []string{
			"fedentity version",
		},
		Run: func(args []string) error {
			fmt.Printf("fedentity %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	})

	r.Register(&Command{
		Name:        "help",
		Description: "Show help information",
		Usage:       "fedentity help [command]",
		Examples: []string{
			"fedentity help",
			"fedentity help resolve",
		},
		Run: func(args []string) error {
			r.PrintHelp(os.Stdout)
			return nil
		},
	})
}
