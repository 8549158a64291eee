// Package gossip disseminates rumors between the nodes in the cluster.
//
// Each node stores rumors in a rumor.Store. Every round the node pushes its
// hot rumors to a random subset of peers and requests a pull from a random
// peer. Peers respond with their hot and cold rumors. Since each rumor is
// identified by its digest, nodes converge on the same set of rumors.
//
// Peers are discovered by joining a seed node, then from the headers of
// received packets. The failure detector is only used to choose which peers
// to push to. Peers are never removed.
package gossip
