// Package filesystem provides the filesystem access used by the link
// facade and the worker.
//
// The FS interface covers the handful of calls link management needs. The
// OS implementation is returned by NewOS; tests substitute their own.
package filesystem
