// Package worker is the elevated side of an elevation session.
//
// A worker connects back to the orchestrator's channel, announces itself,
// and then applies link-file and remove-link requests in the order they
// arrive, answering each with a finished message. It exits on quit or when
// the orchestrator goes away.
package worker
