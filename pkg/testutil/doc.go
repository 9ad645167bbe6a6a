// Package testutil provides helpers shared by elevlink tests.
//
// MemoryFS is an in-memory filesystem.FS with error injection, for tests of
// link logic that should not touch the disk. The remaining helpers create
// and check real files, links and socket directories.
package testutil
