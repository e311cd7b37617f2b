// Package api defines the domain types shared by the orchestrator, the
// record store and the HTTP boundary. Field names on the JSON tags are
// part of the wire contract with existing clients and must not change.
package api

import "github.com/go-openapi/strfmt"

// Mode selects how a conversation's participants take their turns.
type Mode string

const (
	// ModeIndependent fans the prompt out to every participant in
	// parallel, with no shared history between them.
	ModeIndependent Mode = "independent"
	// ModeRoundRobin visits participants in orderIndex order, once per
	// round, each turn seeing everything said before it.
	ModeRoundRobin Mode = "round_robin"
	// ModeModerated wraps each round with moderator framing: open,
	// direct, summarize, conclude.
	ModeModerated Mode = "moderated"
)

// Valid reports whether m is one of the known conversation modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeIndependent, ModeRoundRobin, ModeModerated:
		return true
	}
	return false
}

// Role classifies a participant within a conversation.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleModerator   Role = "moderator"
	RoleUser        Role = "user"
)

// Participant is one configured model slot in a conversation. It is
// immutable for the lifetime of a discussion run.
type Participant struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	ModelID        string `json:"modelId"`
	DisplayName    string `json:"displayName"`
	Role           Role   `json:"role"`
	OrderIndex     int    `json:"orderIndex"`
}

// Message is one persisted conversation entry. ParticipantID is nil for
// the user's own messages, RoundNumber is nil outside discussion mode.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	ParticipantID  *string         `json:"participantId"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ModelID        *string         `json:"modelId"`
	RoundNumber    *int            `json:"roundNumber"`
	CreatedAt      strfmt.DateTime `json:"createdAt"`
}

// Conversation groups participants and messages under a title and mode.
type Conversation struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Mode         Mode            `json:"mode"`
	CreatedAt    strfmt.DateTime `json:"createdAt"`
	UpdatedAt    strfmt.DateTime `json:"updatedAt"`
	Participants []Participant   `json:"participants"`
	Messages     []Message       `json:"messages,omitempty"`
}

// Moderator returns the conversation's designated moderator from ps, or
// nil when none is flagged. When several are flagged (the API layer never
// creates more than one) the first by order index wins.
func Moderator(ps []Participant) *Participant {
	var found *Participant
	for i := range ps {
		if ps[i].Role != RoleModerator {
			continue
		}
		if found == nil || ps[i].OrderIndex < found.OrderIndex {
			found = &ps[i]
		}
	}
	return found
}
