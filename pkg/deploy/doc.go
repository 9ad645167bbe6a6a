// Package deploy applies a manifest of links to a data directory.
//
// The algorithm knows nothing about elevation. It drives an injected
// LinkStrategy; the elevated link facade is one such strategy.
package deploy
