package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/events"
	"github.com/parleyhq/parley/pkg/slogx"
	"github.com/parleyhq/parley/prompt"
	"github.com/parleyhq/parley/provider"
	"github.com/samber/lo"
)

// errTurnFailed marks a turn that failed upstream and was reported as an
// error event. The scheduler skips to the next visit; nothing about the
// run as a whole is wrong.
var errTurnFailed = errors.New("turn failed")

type turn struct {
	participant  api.Participant
	systemPrompt string
	round        int
}

// executeTurn runs one participant's turn: turn_start, stream the
// completion through the prefix stripper as token events, persist the
// finished message, turn_end. The returned content is the cleaned full
// text.
//
// A context cancellation is returned as-is and produces no error event;
// any other upstream failure is emitted as an error event scoped to the
// participant and returned as errTurnFailed, with nothing persisted.
func (o *Orchestrator) executeTurn(ctx context.Context, conversationID string, t turn, history []prompt.Turn, emit func(events.Event)) (string, error) {
	emit(events.TurnStart{
		ParticipantID: t.participant.ID,
		ModelID:       t.participant.ModelID,
		DisplayName:   t.participant.DisplayName,
		Round:         t.round,
	})

	systemPrompt := t.systemPrompt
	if hint := prompt.LanguageHint(history[0].Content); hint != "" {
		systemPrompt += "\n\n" + hint
	}
	messages := []provider.Message{
		provider.System(systemPrompt),
		provider.User(prompt.Consolidate(history)),
	}

	stream, err := o.provider.StreamCompletion(ctx, t.participant.ModelID, messages)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		emit(events.Error{Message: err.Error(), ParticipantID: t.participant.ID})
		return "", errTurnFailed
	}

	// raw accumulates the uncleaned text; the label regex runs over it
	// once more at the end in case the streaming heuristic missed.
	var raw strings.Builder
	var strip prefixStripper

	for event := range stream {
		switch e := event.(type) {
		case provider.Delta:
			raw.WriteString(e.Content)
			if cleaned := strip.feed(e.Content); cleaned != "" {
				emit(events.Token{Content: cleaned, ParticipantID: t.participant.ID})
			}
		case provider.StreamError:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			emit(events.Error{Message: e.Err.Error(), ParticipantID: t.participant.ID})
			return "", errTurnFailed
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if tail := strip.flush(); tail != "" {
		emit(events.Token{Content: tail, ParticipantID: t.participant.ID})
	}

	content := stripLabel(raw.String())

	var messageID string
	if created, ok := o.persist(ctx, api.Message{
		ConversationID: conversationID,
		ParticipantID:  lo.ToPtr(t.participant.ID),
		Role:           provider.RoleAssistant,
		Content:        content,
		ModelID:        lo.ToPtr(t.participant.ModelID),
		RoundNumber:    lo.ToPtr(t.round),
	}); ok {
		messageID = created.ID
	}

	emit(events.TurnEnd{
		ParticipantID: t.participant.ID,
		FullContent:   content,
		Round:         t.round,
		MessageID:     messageID,
	})
	return content, nil
}

// persist writes a message best-effort: a storage failure is logged and
// reported through the ok return, never up the stack. A storage hiccup
// should not kill a discussion that has several model answers in flight
// behind it.
func (o *Orchestrator) persist(ctx context.Context, msg api.Message) (api.Message, bool) {
	created, err := o.store.CreateMessage(ctx, msg)
	if err != nil {
		o.log.Error("failed to persist message",
			"conversation_id", msg.ConversationID,
			"role", msg.Role,
			slogx.Error(err))
		return api.Message{}, false
	}
	return created, true
}
