// Package linker is the link facade used by deployments that need an
// elevated worker to create symlinks.
//
// A Facade wraps the prepare and finalize hooks of the deployment it serves
// so that an elevation session is running in between. Link and unlink
// requests are handed to the session and return as soon as the worker has
// them. Reads (IsLink, the purge walk) happen in-process without privileges.
package linker
