package relay

import "errors"

// ErrorKind identifies one of the taxonomy entries from the specification's
// error handling design. It is carried in synthesised `response` envelopes
// and in internal cancellation paths.
type ErrorKind string

const (
	// ErrKindAuthRejected means credentials presented at connection time
	// were invalid.
	ErrKindAuthRejected ErrorKind = "auth_rejected"

	// ErrKindAuthTimeout means an agent did not send agent:auth in time.
	ErrKindAuthTimeout ErrorKind = "auth_timeout"

	// ErrKindTimeout means a correlated request's deadline fired before a
	// response arrived.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindAgentOffline means a request targeted an agent that is not
	// (or is no longer) connected.
	ErrKindAgentOffline ErrorKind = "agent_offline"

	// ErrKindBrowserDisconnected means a pending request was cancelled
	// because the issuing browser left. Never surfaced to any peer.
	ErrKindBrowserDisconnected ErrorKind = "browser_disconnected"

	// ErrKindMalformedEnvelope means an inbound message failed to parse.
	ErrKindMalformedEnvelope ErrorKind = "malformed_envelope"

	// ErrKindDuplicateCorrelationID means a client reused a correlation id
	// still outstanding in its own registry — a client-side bug.
	ErrKindDuplicateCorrelationID ErrorKind = "duplicate_correlation_id"
)

// Sentinel errors returned by package-level constructors and collaborator
// implementations. Callers compare with errors.Is.
var (
	// ErrAuthRejected is returned by acceptors when credentials fail
	// verification.
	ErrAuthRejected = errors.New("relay: auth rejected")

	// ErrAuthTimeout is returned by the Agent Acceptor when no agent:auth
	// message arrives before the configured timeout.
	ErrAuthTimeout = errors.New("relay: agent auth timeout")

	// ErrTokenExpired is returned by a TokenVerifier to distinguish an
	// expired token from any other verification failure.
	ErrTokenExpired = errors.New("relay: token expired")

	// ErrDuplicateCorrelationID is returned by the Pending Request Registry
	// when Create is called with an id already outstanding.
	ErrDuplicateCorrelationID = errors.New("relay: duplicate correlation id")

	// ErrUnknownUpgradePath names the refusal of any path other than the
	// configured browser/agent paths. The Upgrade Router does not return
	// it: it closes the connection without a response.
	ErrUnknownUpgradePath = errors.New("relay: unknown upgrade path")
)
