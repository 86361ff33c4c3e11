// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package messaging

import (
	"crypto/tls"
	"time"

	"github.com/luxfi/messaging/rpc"
)

// EncryptPolicy selects which peers a connection must be encrypted to,
// mirroring server_encrypt_options::encrypt_what.
type EncryptPolicy int

const (
	EncryptNone EncryptPolicy = iota
	EncryptAll
	EncryptDC
	EncryptRack
)

func (p EncryptPolicy) String() string {
	switch p {
	case EncryptAll:
		return "all"
	case EncryptDC:
		return "dc"
	case EncryptRack:
		return "rack"
	default:
		return "none"
	}
}

// CompressPolicy selects which peers a connection must be compressed to,
// mirroring compress_what.
type CompressPolicy int

const (
	CompressNone CompressPolicy = iota
	CompressDC
	CompressAll
)

func (p CompressPolicy) String() string {
	switch p {
	case CompressAll:
		return "all"
	case CompressDC:
		return "dc"
	default:
		return "none"
	}
}

// TCPNoDelay controls whether new connections disable Nagling, mirroring
// tcp_nodelay_what; 'local' vs 'all' only matters once a locality oracle is
// wired in, so the default policy treats every peer as remote.
type TCPNoDelayPolicy int

const (
	TCPNoDelayAll TCPNoDelayPolicy = iota
	TCPNoDelayLocal
)

// LocalityOracle reports whether a peer shares this node's datacenter or
// rack, used to resolve EncryptDC/EncryptRack/CompressDC against a live
// peer rather than a static list.
type LocalityOracle interface {
	SameDC(ip string) bool
	SameRack(ip string) bool
}

// MembershipOracle reports whether an address is still a known member of
// the cluster, consulted by the retry loop to decide whether to keep
// retrying a send or give up, mirroring gms::gossiper::is_known_endpoint.
type MembershipOracle interface {
	IsKnownEndpoint(ip string) bool
}

// CredentialsBuilder produces a *tls.Config for outbound and inbound
// connections, mirroring the source's db::config-backed
// utils::loading_cache<..., shared_ptr<tls::certificate_credentials>>.
type CredentialsBuilder interface {
	ClientTLSConfig() (*tls.Config, error)
	ServerTLSConfig() (*tls.Config, error)
}

// Config bundles everything Service needs to listen and dial, the Go
// analogue of messaging_service_config plus the handful of
// db::config-sourced knobs the constructor also reads directly.
type Config struct {
	// ListenAddress is the plain-TCP bind address.
	ListenAddress string
	// SSLListenAddress is the TLS bind address; empty disables TLS
	// listening entirely.
	SSLListenAddress string
	// BroadcastAddress, if non-empty and different from ListenAddress, gets
	// its own best-effort listener in addition to the primary one,
	// mirroring should_listen_to_broadcast_address.
	BroadcastAddress string
	// ListenOnBroadcastAddress mirrors the config knob of the same name; it
	// must be true, and BroadcastAddress must differ from ListenAddress,
	// for the second listener to actually start.
	ListenOnBroadcastAddress bool

	EncryptWhat  EncryptPolicy
	CompressWhat CompressPolicy
	TCPNoDelay   TCPNoDelayPolicy

	Credentials CredentialsBuilder
	Locality    LocalityOracle
	Membership  MembershipOracle

	Keepalive rpc.KeepaliveParams

	// Limits bounds the memory the server registry will let inbound
	// requests occupy before rejecting new ones outright. The zero value
	// asks for defaultResourceLimits(), sized off the process's own memory
	// budget rather than a fixed constant.
	Limits ResourceLimits

	// RetryWait is the sleep between send_with_retry attempts.
	RetryWait time.Duration
	// MaxRetries bounds send_with_retry attempts; 0 uses DefaultMaxRetries.
	MaxRetries int
	// PerTryTimeout bounds each individual attempt inside send_with_retry.
	PerTryTimeout time.Duration

	// ListenNow, if true, makes NewService start listening immediately
	// instead of waiting for an explicit StartListen call — the source's
	// constructor takes a listen_now bool for exactly this reason, since
	// some callers (tests, standalone tools) want a socket open right away
	// while the real server defers it until the rest of the node is ready.
	ListenNow bool
}

const (
	// DefaultMaxRetries is send_with_retry's bound on total attempts.
	DefaultMaxRetries = 10
	// DefaultPerTryTimeout is the per-attempt deadline inside send_with_retry.
	DefaultPerTryTimeout = 10 * time.Minute
	// DefaultRetryWait is the sleep between send_with_retry attempts.
	DefaultRetryWait = 30 * time.Second
)

func (c *Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Config) perTryTimeout() time.Duration {
	if c.PerTryTimeout > 0 {
		return c.PerTryTimeout
	}
	return DefaultPerTryTimeout
}

func (c *Config) retryWait() time.Duration {
	if c.RetryWait > 0 {
		return c.RetryWait
	}
	return DefaultRetryWait
}

// mustEncrypt decides whether a connection to ip needs TLS under the
// configured policy. When EncryptDC/EncryptRack is configured but no
// locality oracle is wired in, it answers "don't encrypt" (the policy
// behaves as EncryptNone); with an oracle, a peer it cannot place in the
// local DC/rack is treated as remote.
func (c *Config) mustEncrypt(ip string) bool {
	switch c.EncryptWhat {
	case EncryptAll:
		return true
	case EncryptDC:
		return c.Locality != nil && !c.Locality.SameDC(ip)
	case EncryptRack:
		return c.Locality != nil && !c.Locality.SameRack(ip)
	default:
		return false
	}
}

// mustCompress mirrors mustEncrypt for CompressWhat.
func (c *Config) mustCompress(ip string) bool {
	switch c.CompressWhat {
	case CompressAll:
		return true
	case CompressDC:
		return c.Locality == nil || !c.Locality.SameDC(ip)
	default:
		return false
	}
}

// resourceLimits returns the configured Limits, or defaultResourceLimits()
// if the embedder never set one.
func (c *Config) resourceLimits() ResourceLimits {
	if c.Limits.MaxMemory > 0 {
		return c.Limits
	}
	return defaultResourceLimits()
}

// noDelay reports whether TCP_NODELAY should be set for ip.
func (c *Config) noDelay(ip string) bool {
	if c.TCPNoDelay == TCPNoDelayAll {
		return true
	}
	return c.Locality == nil || !c.Locality.SameDC(ip)
}
