// Package rumor tracks the round state of each rumor known to the local node
// in an epidemic (rumor-mongering) gossip protocol.
//
// Each rumor is identified by the SHA3-256 digest of its payload and carries
// two counters. The push counter tracks the rumors progress through the hot
// phase, where it is actively pushed to peers, and the cold phase, where it is
// only offered in response to pull requests. The age counter tracks the number
// of rounds since the rumor was first stored locally and bounds how long the
// rumor circulates regardless of the push counter.
//
// Nodes converge on a rumors push counter using only the counters reported by
// peers: if most peers contacted during a round report a counter at or past
// the local counter, the local counter skips ahead.
//
// Store is not safe for concurrent use. The owner must serialise access.
package rumor
