// Package protocol implements the line-oriented message format exchanged between
// workflow agents:
//
//	FROM: <identifier>
//	TO: <identifier>
//	ACTION: <step-started|step-completed|solution-complete>
//	DETAILS:
//
//	<free-form multi-line text>
package protocol

import "strings"

// Action is the lifecycle event a message carries.
type Action int

const (
	ActionUnknown Action = iota
	ActionStepStarted
	ActionStepCompleted
	ActionSolutionComplete
	// ActionAcknowledge is only ever sent, never handled.
	ActionAcknowledge
)

var actionNames = map[Action]string{
	ActionStepStarted:      "step-started",
	ActionStepCompleted:    "step-completed",
	ActionSolutionComplete: "solution-complete",
	ActionAcknowledge:      "acknowledge",
}

// String returns the wire name of the action.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAction maps a wire name to an Action. Unrecognised names map to ActionUnknown.
func ParseAction(s string) Action {
	s = strings.TrimSpace(s)
	for action, name := range actionNames {
		if name == s {
			return action
		}
	}
	return ActionUnknown
}

// Message header keys.
const (
	KeyFrom    = "FROM"
	KeyTo      = "TO"
	KeyAction  = "ACTION"
	KeyDetails = "DETAILS"
)

// ParsedMessage is an inbound message after decoding.
type ParsedMessage struct {
	From      string
	To        string
	Action    Action
	RawAction string
	Details   string
}

// Acknowledgement is the reply sent back to the sender of a lifecycle event.
type Acknowledgement struct {
	To      string
	From    string
	Payload map[string]string
}

// NewAcknowledgement addresses a reply back to the sender of msg.
func NewAcknowledgement(msg ParsedMessage, payload map[string]string) Acknowledgement {
	if payload == nil {
		payload = map[string]string{}
	}
	return Acknowledgement{
		To:      msg.From,
		From:    msg.To,
		Payload: payload,
	}
}
