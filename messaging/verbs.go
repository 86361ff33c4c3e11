// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

// Verb identifies one kind of inter-node message. It is a closed
// enumeration: every Verb has a fixed request/response shape chosen at the
// call site (see send.go), the same way messaging_verb in the source is an
// enum consumed by template-parameterized send_message<MsgIn, MsgOut...>.
type Verb int32

const (
	// ClientID is the implicit handshake verb: the first thing a client
	// sends on a fresh connection, carrying the sender's own address. No
	// source shard id is sent.
	ClientID Verb = iota

	// Control-plane verbs. All of these except GossipDigestAck share pool
	// slot 1 (see poolSlot below) so that gossip chatter never queues
	// behind a data-path request on the same TCP connection;
	// GossipDigestAck stays on the default slot.
	GossipDigestSyn
	GossipDigestAck
	GossipDigestAck2
	GossipShutdown
	GossipEcho

	// GetSchemaVersion is sent from read/mutate verbs to resolve a schema
	// id. It lives on the default slot alongside the data path rather than
	// the control slot, so it is not isolated from the verbs that trigger
	// it.
	GetSchemaVersion

	numVerbs
)

var verbNames = map[Verb]string{
	ClientID:         "CLIENT_ID",
	GossipDigestSyn:  "GOSSIP_DIGEST_SYN",
	GossipDigestAck:  "GOSSIP_DIGEST_ACK",
	GossipDigestAck2: "GOSSIP_DIGEST_ACK2",
	GossipShutdown:   "GOSSIP_SHUTDOWN",
	GossipEcho:       "GOSSIP_ECHO",
	GetSchemaVersion: "GET_SCHEMA_VERSION",
}

// String renders the verb the way it appears in logs and in the RPC
// method-name field on the wire.
func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "UNKNOWN_VERB"
}

// poolSlot assigns a verb to a connection-pool index. Verbs not explicitly
// listed fail closed to slotDefault: putting a dependent verb on the same
// connection as its prerequisite risks a request blocking behind itself.
//
// GET_SCHEMA_VERSION is sent from read/mutate verbs; it is not listed, so
// it stays on slotDefault, the same connection as the verbs that trigger
// it.
func poolSlot(v Verb) int {
	switch v {
	case GossipDigestSyn, GossipDigestAck2, GossipShutdown, GossipEcho:
		return slotControl
	default:
		return slotDefault
	}
}

const (
	slotDefault = 0
	slotControl = 1
	numSlots    = 2
)

// NoReply is the sentinel response type for fire-and-forget verbs, the Go
// analogue of rpc::no_wait_type.
type NoReply struct{}
