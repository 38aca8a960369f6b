package gateway

import (
	"github.com/Rene-Zhou/Astinus-sub001/internal/orchestrator"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
)

// Client message types.
const (
	ClientCreate      = "create"
	ClientAttach      = "attach"
	ClientAction      = "action"
	ClientCheckResult = "check_result"
	ClientStatus      = "status"
	ClientMove        = "move"
	ClientReset       = "reset"
	ClientEnd         = "end"
)

// Server message types.
const (
	ServerSession      = "session"
	ServerTurn         = "turn"
	ServerCheckRequest = "check_request"
	ServerStatus       = "status"
	ServerError        = "error"
)

// ClientMessage is the envelope for every message a client sends. Type
// selects the operation; the remaining fields are read per type.
type ClientMessage struct {
	Type string `json:"type"`

	// create
	PackID           string `json:"pack_id,omitempty"`
	Language         string `json:"language,omitempty"`
	CharacterSummary string `json:"character_summary,omitempty"`
	Location         string `json:"location,omitempty"`

	// attach
	SessionID string `json:"session_id,omitempty"`

	// action
	Action   string `json:"action,omitempty"`
	Argument string `json:"argument,omitempty"`

	// check_result
	Check *responder.CheckResult `json:"check,omitempty"`
}

// ServerMessage is the envelope for every message sent to a client.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	Turn   *TurnPayload   `json:"turn,omitempty"`
	Check  *CheckPayload  `json:"check,omitempty"`
	Status *StatusPayload `json:"status,omitempty"`
	Error  *ErrorPayload  `json:"error,omitempty"`
}

// TurnPayload is the wire form of a completed turn.
type TurnPayload struct {
	Narrative    string            `json:"narrative"`
	Phase        string            `json:"phase"`
	TurnCount    int               `json:"turn_count"`
	PacingAdvice string            `json:"pacing_advice,omitempty"`
	Diagnostics  map[string]string `json:"diagnostics,omitempty"`
}

// CheckPayload is the wire form of a suspended turn awaiting a dice roll.
type CheckPayload struct {
	Phase   string              `json:"phase"`
	Request responder.CheckSpec `json:"request"`
}

// StatusPayload is the wire form of a session status snapshot.
type StatusPayload struct {
	Phase            string                 `json:"phase"`
	TurnCount        int                    `json:"turn_count"`
	Location         string                 `json:"location,omitempty"`
	PendingCheck     *responder.CheckSpec   `json:"pending_check,omitempty"`
	LastCheckResult  *responder.CheckResult `json:"last_check_result,omitempty"`
	ActiveResponders []string               `json:"active_responders,omitempty"`
}

// ErrorPayload carries a classified error to the client.
type ErrorPayload struct {
	// Kind is one of the responder error kinds ("input", "state",
	// "validation", ...) or "gateway" for transport-level problems.
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// turnPayload converts an orchestrator turn response for the wire. Suspended
// turns are rendered as a check request instead.
func turnPayload(tr *orchestrator.TurnResponse) *TurnPayload {
	return &TurnPayload{
		Narrative:    tr.Narrative,
		Phase:        string(tr.Phase),
		TurnCount:    tr.TurnCount,
		PacingAdvice: tr.PacingAdvice,
		Diagnostics:  tr.Diagnostics,
	}
}

// statusPayload converts an orchestrator status snapshot for the wire.
func statusPayload(st orchestrator.Status) *StatusPayload {
	return &StatusPayload{
		Phase:            string(st.Phase),
		TurnCount:        st.TurnCount,
		Location:         st.Location,
		PendingCheck:     st.PendingCheck,
		LastCheckResult:  st.LastCheckResult,
		ActiveResponders: st.ActiveResponders,
	}
}
