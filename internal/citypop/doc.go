// Package citypop defines the core types shared by the extraction pipeline:
// countries and their metadata, raw and normalized city rows, per-country
// results and the flattened rows consumed by the report renderer.
package citypop
