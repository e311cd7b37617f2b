package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/events"
	"github.com/parleyhq/parley/prompt"
	"github.com/parleyhq/parley/provider"
	"github.com/samber/lo"
)

// MessageCreator is the slice of the record store the orchestrator
// needs: it creates messages and reads nothing back.
type MessageCreator interface {
	CreateMessage(ctx context.Context, msg api.Message) (api.Message, error)
}

// Request carries the parameters of one discussion run.
type Request struct {
	ConversationID string
	UserMessage    string
	Mode           api.Mode
	Participants   []api.Participant
	MaxRounds      int
}

// Orchestrator schedules discussion runs against one provider and store.
type Orchestrator struct {
	provider provider.Provider
	store    MessageCreator
	log      *slog.Logger
}

// New creates an orchestrator. A nil logger falls back to slog's
// default.
func New(p provider.Provider, store MessageCreator, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{provider: p, store: store, log: log}
}

// Orchestrate starts a discussion run and returns its event stream. The
// channel closes when the run is over; cancelling ctx stops scheduling
// further turns and aborts the in-flight upstream request.
//
// The terminal discussion_complete event is emitted unconditionally once
// the protocol returns, cancelled or not: it means scheduling is over,
// not that every round ran.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) <-chan events.Event {
	out := make(chan events.Event, 10)
	go func() {
		defer close(out)
		emit := func(ev events.Event) {
			// Prefer delivery: after cancellation the terminal event
			// should still reach a consumer that is draining.
			select {
			case out <- ev:
				return
			default:
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		o.run(ctx, req, emit)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, emit func(events.Event)) {
	o.persist(ctx, api.Message{
		ConversationID: req.ConversationID,
		Role:           provider.RoleUser,
		Content:        req.UserMessage,
	})

	// The scheduler is the single owner of the history: appended here
	// and in the protocol loops, read-only everywhere else.
	history := []prompt.Turn{{Role: provider.RoleUser, Content: req.UserMessage}}

	switch req.Mode {
	case api.ModeModerated:
		o.moderated(ctx, req, &history, emit)
	default:
		o.roundRobin(ctx, req, &history, emit)
	}

	emit(events.DiscussionComplete{TotalRounds: req.MaxRounds})
}

func (o *Orchestrator) roundRobin(ctx context.Context, req Request, history *[]prompt.Turn, emit func(events.Event)) {
	ordered := slices.Clone(req.Participants)
	slices.SortStableFunc(ordered, func(a, b api.Participant) int {
		return cmp.Compare(a.OrderIndex, b.OrderIndex)
	})

	// Accumulates across rounds: in round 2 everyone who spoke in
	// round 1 counts as having spoken.
	var spoken []string

	for round := 1; round <= req.MaxRounds; round++ {
		for _, p := range ordered {
			if ctx.Err() != nil {
				return
			}

			others := lo.FilterMap(ordered, func(x api.Participant, _ int) (string, bool) {
				return x.DisplayName, x.ID != p.ID
			})
			systemPrompt := prompt.Participant(prompt.ParticipantContext{
				DisplayName:       p.DisplayName,
				OtherParticipants: others,
				Round:             round,
				MaxRounds:         req.MaxRounds,
				SpokenBefore:      slices.Clone(spoken),
			})

			content, err := o.executeTurn(ctx, req.ConversationID, turn{p, systemPrompt, round}, *history, emit)
			if err != nil {
				if errors.Is(err, errTurnFailed) {
					continue
				}
				return
			}

			spoken = append(spoken, p.DisplayName)
			*history = append(*history, prompt.Turn{
				Role:    provider.RoleAssistant,
				Content: fmt.Sprintf("[%s]: %s", p.DisplayName, content),
			})
		}
	}
}

func (o *Orchestrator) moderated(ctx context.Context, req Request, history *[]prompt.Turn, emit func(events.Event)) {
	moderator := api.Moderator(req.Participants)
	if moderator == nil {
		emit(events.Error{Message: "no moderator designated"})
		return
	}
	others := lo.Filter(req.Participants, func(p api.Participant, _ int) bool {
		return p.Role != api.RoleModerator
	})
	names := lo.Map(others, func(p api.Participant, _ int) string { return p.DisplayName })

	var spoken []string

	moderatorTurn := func(phase prompt.Phase, round int) error {
		systemPrompt := prompt.Moderator(prompt.ModeratorContext{
			DisplayName:  moderator.DisplayName,
			Participants: names,
			Phase:        phase,
			Round:        round,
			MaxRounds:    req.MaxRounds,
		})
		content, err := o.executeTurn(ctx, req.ConversationID, turn{*moderator, systemPrompt, round}, *history, emit)
		if err != nil {
			return err
		}
		// The conclusion ends the discussion, nobody reads history after it.
		if phase != prompt.PhaseConclude {
			*history = append(*history, prompt.Turn{
				Role:    provider.RoleAssistant,
				Content: fmt.Sprintf("[Moderator - %s]: %s", moderator.DisplayName, content),
			})
		}
		return nil
	}

	isCancelled := func(err error) bool {
		return err != nil && !errors.Is(err, errTurnFailed)
	}

	// Moderator opens the discussion, round 0.
	if ctx.Err() != nil {
		return
	}
	if err := moderatorTurn(prompt.PhaseOpen, 0); isCancelled(err) {
		return
	} else if err == nil {
		spoken = append(spoken, moderator.DisplayName)
	}

	for round := 1; round <= req.MaxRounds; round++ {
		if ctx.Err() != nil {
			return
		}
		if err := moderatorTurn(prompt.PhaseDirectRound, round); isCancelled(err) {
			return
		}

		for _, p := range others {
			if ctx.Err() != nil {
				return
			}

			otherNames := lo.FilterMap(others, func(x api.Participant, _ int) (string, bool) {
				return x.DisplayName, x.ID != p.ID
			})
			otherNames = append(otherNames, "Moderator: "+moderator.DisplayName)
			systemPrompt := prompt.Participant(prompt.ParticipantContext{
				DisplayName:       p.DisplayName,
				OtherParticipants: otherNames,
				Round:             round,
				MaxRounds:         req.MaxRounds,
				SpokenBefore:      slices.Clone(spoken),
			})

			content, err := o.executeTurn(ctx, req.ConversationID, turn{p, systemPrompt, round}, *history, emit)
			if err != nil {
				if errors.Is(err, errTurnFailed) {
					continue
				}
				return
			}

			spoken = append(spoken, p.DisplayName)
			*history = append(*history, prompt.Turn{
				Role:    provider.RoleAssistant,
				Content: fmt.Sprintf("[%s]: %s", p.DisplayName, content),
			})
		}

		if round < req.MaxRounds {
			if ctx.Err() != nil {
				return
			}
			if err := moderatorTurn(prompt.PhaseSummarize, round); isCancelled(err) {
				return
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	// The conclusion reuses maxRounds as its round label.
	if err := moderatorTurn(prompt.PhaseConclude, req.MaxRounds); isCancelled(err) {
		return
	}
}
