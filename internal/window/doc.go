// Package window resolves the UTC collection window for a harvester run.
//
// The default window covers the previous calendar month in a configured
// local timezone, converted to UTC. Explicit START/END overrides replace
// the computed bounds.
package window
