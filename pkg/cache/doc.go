// Package cache keeps the last known value of every result key reported by a device.
//
// A car that has been switched off stops answering OBD queries, but consumers usually prefer the
// last reading (state of charge, odometer, ...) over no reading at all. A [ResultCache] merges
// each successful non-empty fetch into its map and hands out copies. It is never cleared
// automatically.
//
// The cache can be written to disk with [ResultCache.ExportToFile] and restored with
// [ImportFromFile] so stale values survive a restart.
package cache
