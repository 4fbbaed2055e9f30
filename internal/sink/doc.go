// Package sink loads harvested CSV snapshots into an Apache Doris warehouse
// over its MySQL compatible protocol.
//
// A mapping document names, per source file, the target table and how each
// target column derives from the CSV columns. The default document covers
// the dimension snapshots and the code change facts; an alternate document
// can be supplied to reroute or extend the load.
package sink
