// Package commands implements the nostrconnect command line.
//
// Every command except inspect restores the session from the configured store, so state
// such as the local key, the bound signer and the installed delegation
// carries over between invocations.
package commands
