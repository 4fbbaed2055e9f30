// Package collect implements the audit harvesting workflow used by the
// glharvest CLI.
//
// It exposes CommandBuilder for wiring the collect Cobra command, Service
// for driving the workflow programmatically, one extractor per audit
// category, and the collaborator abstractions the extractors fetch through.
// Categories are isolated from one another: a failing category is logged
// and skipped while the remaining categories still emit their snapshots.
package collect
