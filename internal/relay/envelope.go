package relay

import "encoding/json"

// MessageType identifies the kind of event carried by an Envelope. Both
// sides dispatch on this field; anything the relay does not recognise is
// still representable (Payload stays intact) so agent-originated fan-out of
// unknown types remains lossless.
type MessageType string

// Browser → relay.
const (
	MsgTerminalInput  MessageType = "terminal:input"
	MsgTerminalResize MessageType = "terminal:resize"
	MsgTerminalAttach MessageType = "terminal:attach"
	MsgTerminalClose  MessageType = "terminal:close"
	MsgRequest        MessageType = "request"
	MsgUpdateInstall  MessageType = "update:install"
	MsgPing           MessageType = "ping"
)

// Relay → browser.
const (
	MsgTierInfo     MessageType = "tier:info"
	MsgTierLimit    MessageType = "tier:limit"
	MsgAgentsList   MessageType = "agents:list"
	MsgAgentOnline  MessageType = "agent:online"
	MsgAgentOffline MessageType = "agent:offline"
	MsgResponse     MessageType = "response"
	MsgScanPartial  MessageType = "scan:partial"
	MsgChatMessage  MessageType = "chat:message"
	MsgPong         MessageType = "pong"
)

// Agent → relay, post-auth.
const (
	MsgAgentPong MessageType = "agent:pong"
)

// Relay → agent.
const (
	MsgAgentPing          MessageType = "agent:ping"
	MsgAgentAuthRejected  MessageType = "agent:auth:rejected"
)

// Agent → relay, pre-auth, first message only.
const (
	MsgAgentAuth MessageType = "agent:auth"
)

// targetedMessageTypes are the browser → agent messages forwarded verbatim
// to the agent named by Envelope.AgentID with no response expected (§4.5).
var targetedMessageTypes = map[MessageType]bool{
	MsgTerminalInput:  true,
	MsgTerminalResize: true,
	MsgTerminalAttach: true,
	MsgTerminalClose:  true,
	MsgUpdateInstall:  true,
}

// Envelope is the outer message structure the relay inspects. Payload is
// kept as a raw, opaque JSON value — the relay never decodes it, so
// byte-for-byte forwarding is exact regardless of what the payload shape is.
type Envelope struct {
	Type MessageType `json:"type"`

	// ID is the correlation id. Set by the browser on `request`, echoed on
	// `response`/`scan:partial`. Empty for everything else.
	ID string `json:"id,omitempty"`

	// AgentID is the target agent id. Browser → relay only.
	AgentID string `json:"agentId,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// errorPayload is the shape written into a synthesised error `response`.
type errorPayload struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// newErrorResponse builds a `response` Envelope carrying a synthesised
// error, per §4.5 ("synthesise a response reply with an error status").
func newErrorResponse(correlationID string, status int, message string) Envelope {
	payload, _ := json.Marshal(errorPayload{Status: status, Error: message})
	return Envelope{Type: MsgResponse, ID: correlationID, Payload: payload}
}

// agentAuthClaim is the payload shape of the first agent:auth message an
// agent must send after its upgrade completes (§4.3).
type agentAuthClaim struct {
	Token           string `json:"token"`
	AgentID         string `json:"agentId"`
	Hostname        string `json:"hostname"`
	OperatingSystem string `json:"operatingSystem"`
	VersionString   string `json:"versionString"`
}

// requestPayload is the shape of a browser `request` message's payload.
type requestPayload struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// agentStatusPayload is the payload shape of agent:online / agent:offline
// events pushed by the Routing Tables.
type agentStatusPayload struct {
	AgentID         string `json:"agentId"`
	Hostname        string `json:"hostname,omitempty"`
	OperatingSystem string `json:"operatingSystem,omitempty"`
	VersionString   string `json:"versionString,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only ever called with package-internal, always-marshalable types.
		panic("relay: failed to marshal internal payload: " + err.Error())
	}
	return b
}
