// Package main hosts the scanmaster CLI entrypoint and command graph.
//
// The Cobra command tree runs under fang and covers the HTTP daemon (`serve`),
// the reference scan backend (`backend`), one-shot batch processing
// (`process`), sample generation (`generate`), configuration scaffolding and
// preflight checks. Configuration resolution, `.env` loading and logger setup
// live in the command context so subcommands stay declarative.
package main
