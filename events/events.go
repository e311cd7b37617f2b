package events

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	turnStartJSON          = []byte(`{"type":"turn_start"}`)
	tokenJSON              = []byte(`{"type":"token"}`)
	turnEndJSON            = []byte(`{"type":"turn_end"}`)
	discussionCompleteJSON = []byte(`{"type":"discussion_complete"}`)
	errorJSON              = []byte(`{"type":"error"}`)
)

// Event is the closed interface over the five turn-event variants.
type Event interface {
	event()
}

// TurnStart announces that a participant's turn is beginning.
type TurnStart struct {
	ParticipantID string `json:"participantId"`
	ModelID       string `json:"modelId"`
	DisplayName   string `json:"displayName"`
	Round         int    `json:"round"`
}

func (TurnStart) event() {}

// Token carries one cleaned text increment of the in-flight turn.
type Token struct {
	Content       string `json:"content"`
	ParticipantID string `json:"participantId"`
}

func (Token) event() {}

// TurnEnd closes a turn with its accumulated text. MessageID is the id of
// the persisted message, or empty when persistence failed.
type TurnEnd struct {
	ParticipantID string `json:"participantId"`
	FullContent   string `json:"fullContent"`
	Round         int    `json:"round"`
	MessageID     string `json:"messageId"`
}

func (TurnEnd) event() {}

// DiscussionComplete is the terminal event of a discussion run. It means
// no further turns will be scheduled, not that every round ran.
type DiscussionComplete struct {
	TotalRounds int `json:"totalRounds"`
}

func (DiscussionComplete) event() {}

// Error reports a failed turn or an invalid run configuration.
// ParticipantID is empty for configuration errors.
type Error struct {
	Message       string `json:"message"`
	ParticipantID string `json:"participantId,omitempty"`
}

func (Error) event() {}

// MarshalJSON implements custom JSON marshaling for TurnStart.
func (e TurnStart) MarshalJSON() ([]byte, error) {
	result := turnStartJSON

	var err error
	result, err = sjson.SetBytes(result, "participantId", e.ParticipantID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "modelId", e.ModelID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "displayName", e.DisplayName)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "round", e.Round)
}

// UnmarshalJSON implements custom JSON unmarshaling for TurnStart.
func (e *TurnStart) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "turn_start"); err != nil {
		return err
	}
	e.ParticipantID = gjson.GetBytes(data, "participantId").String()
	e.ModelID = gjson.GetBytes(data, "modelId").String()
	e.DisplayName = gjson.GetBytes(data, "displayName").String()
	e.Round = int(gjson.GetBytes(data, "round").Int())
	return nil
}

// MarshalJSON implements custom JSON marshaling for Token.
func (e Token) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(tokenJSON, "content", e.Content)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "participantId", e.ParticipantID)
}

// UnmarshalJSON implements custom JSON unmarshaling for Token.
func (e *Token) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "token"); err != nil {
		return err
	}
	e.Content = gjson.GetBytes(data, "content").String()
	e.ParticipantID = gjson.GetBytes(data, "participantId").String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for TurnEnd.
func (e TurnEnd) MarshalJSON() ([]byte, error) {
	result := turnEndJSON

	var err error
	result, err = sjson.SetBytes(result, "participantId", e.ParticipantID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "fullContent", e.FullContent)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "round", e.Round)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "messageId", e.MessageID)
}

// UnmarshalJSON implements custom JSON unmarshaling for TurnEnd.
func (e *TurnEnd) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "turn_end"); err != nil {
		return err
	}
	e.ParticipantID = gjson.GetBytes(data, "participantId").String()
	e.FullContent = gjson.GetBytes(data, "fullContent").String()
	e.Round = int(gjson.GetBytes(data, "round").Int())
	e.MessageID = gjson.GetBytes(data, "messageId").String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for DiscussionComplete.
func (e DiscussionComplete) MarshalJSON() ([]byte, error) {
	return sjson.SetBytes(discussionCompleteJSON, "totalRounds", e.TotalRounds)
}

// UnmarshalJSON implements custom JSON unmarshaling for DiscussionComplete.
func (e *DiscussionComplete) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "discussion_complete"); err != nil {
		return err
	}
	e.TotalRounds = int(gjson.GetBytes(data, "totalRounds").Int())
	return nil
}

// MarshalJSON implements custom JSON marshaling for Error.
func (e Error) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(errorJSON, "message", e.Message)
	if err != nil {
		return nil, err
	}
	if e.ParticipantID == "" {
		return result, nil
	}
	return sjson.SetBytes(result, "participantId", e.ParticipantID)
}

// UnmarshalJSON implements custom JSON unmarshaling for Error.
func (e *Error) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "error"); err != nil {
		return err
	}
	e.Message = gjson.GetBytes(data, "message").String()
	e.ParticipantID = gjson.GetBytes(data, "participantId").String()
	return nil
}

func checkType(data []byte, want string) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != want {
		return fmt.Errorf("missing or invalid type, expected %q", want)
	}
	return nil
}

// Decode parses a serialized event into the variant named by its type
// discriminator.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}

	switch kind := gjson.GetBytes(data, "type").String(); kind {
	case "turn_start":
		var e TurnStart
		err := e.UnmarshalJSON(data)
		return e, err
	case "token":
		var e Token
		err := e.UnmarshalJSON(data)
		return e, err
	case "turn_end":
		var e TurnEnd
		err := e.UnmarshalJSON(data)
		return e, err
	case "discussion_complete":
		var e DiscussionComplete
		err := e.UnmarshalJSON(data)
		return e, err
	case "error":
		var e Error
		err := e.UnmarshalJSON(data)
		return e, err
	default:
		return nil, fmt.Errorf("unknown event type %q", kind)
	}
}
