// Package protocol defines the contract between a terminal session and the
// engine that decodes input bytes and encodes control sequences.
//
// The session hands the engine a fixed Integration callback table at
// construction; the engine never reaches the descriptor any other way.
package protocol
