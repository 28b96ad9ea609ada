// Package source implements the page adapters probed by the extraction
// cascade. Every adapter is a TableSource configured by a citypop.SourceSpec:
// where the page lives, which tables count as data tables and how to treat
// unparseable population cells.
package source
