package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/events"
	"github.com/parleyhq/parley/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type completionCall struct {
	model    string
	messages []provider.Message
}

type scriptedTurn struct {
	deltas  []string
	openErr error
	midErr  error
}

// fakeProvider answers calls from a script; unscripted calls echo a
// numbered reply.
type fakeProvider struct {
	mu    sync.Mutex
	calls []completionCall
	turns map[int]scriptedTurn // keyed by 1-based call number
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, model string, messages []provider.Message) (<-chan provider.StreamEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, completionCall{model: model, messages: messages})
	n := len(f.calls)
	turn, ok := f.turns[n]
	f.mu.Unlock()

	if !ok {
		turn = scriptedTurn{deltas: []string{fmt.Sprintf("reply %d", n)}}
	}
	if turn.openErr != nil {
		return nil, turn.openErr
	}

	ch := make(chan provider.StreamEvent, len(turn.deltas)+1)
	for _, d := range turn.deltas {
		ch <- provider.Delta{Content: d}
	}
	if turn.midErr != nil {
		ch <- provider.StreamError{Err: turn.midErr}
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Complete(ctx context.Context, model string, messages []provider.Message) (string, error) {
	stream, err := f.StreamCompletion(ctx, model, messages)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for ev := range stream {
		if d, ok := ev.(provider.Delta); ok {
			b.WriteString(d.Content)
		}
	}
	return b.String(), nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) call(n int) completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[n-1]
}

type fakeStore struct {
	mu       sync.Mutex
	messages []api.Message
	failErr  error
	onCreate func(msg api.Message)
}

func (f *fakeStore) CreateMessage(_ context.Context, msg api.Message) (api.Message, error) {
	f.mu.Lock()
	if f.failErr != nil {
		f.mu.Unlock()
		return api.Message{}, f.failErr
	}
	msg.ID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	msg.CreatedAt = strfmt.DateTime(time.Now())
	f.messages = append(f.messages, msg)
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return msg, nil
}

func (f *fakeStore) saved() []api.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Message(nil), f.messages...)
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func byType[T events.Event](evs []events.Event) []T {
	var out []T
	for _, ev := range evs {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func participants() []api.Participant {
	return []api.Participant{
		{ID: "p-alice", ConversationID: "c1", ModelID: "openai/gpt-4o", DisplayName: "Alice", Role: api.RoleParticipant, OrderIndex: 2},
		{ID: "p-bob", ConversationID: "c1", ModelID: "anthropic/claude-sonnet-4", DisplayName: "Bob", Role: api.RoleParticipant, OrderIndex: 1},
	}
}

const topic = "Should governments regulate artificial intelligence?"

func newRequest(mode api.Mode, maxRounds int, ps []api.Participant) Request {
	return Request{
		ConversationID: "c1",
		UserMessage:    topic,
		Mode:           mode,
		Participants:   ps,
		MaxRounds:      maxRounds,
	}
}

func TestRoundRobin(t *testing.T) {
	t.Run("visits participants in order for every round", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 2, participants())))

		starts := byType[events.TurnStart](evs)
		require.Len(t, starts, 4, "P×R turns")
		assert.Equal(t, "Bob", starts[0].DisplayName, "ascending orderIndex, not listed order")
		assert.Equal(t, "Alice", starts[1].DisplayName)
		assert.Equal(t, "Bob", starts[2].DisplayName)
		assert.Equal(t, "Alice", starts[3].DisplayName)
		assert.Equal(t, []int{1, 1, 2, 2}, []int{starts[0].Round, starts[1].Round, starts[2].Round, starts[3].Round})

		ends := byType[events.TurnEnd](evs)
		require.Len(t, ends, 4)
		assert.Empty(t, byType[events.Error](evs))

		completes := byType[events.DiscussionComplete](evs)
		require.Len(t, completes, 1)
		assert.Equal(t, 2, completes[0].TotalRounds)
		assert.Equal(t, completes[0], evs[len(evs)-1], "terminal event comes last")
	})

	t.Run("first turn sees the raw topic, later turns the consolidated history", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{}
		orch := New(p, st, nil)

		drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 1, participants())))

		first := p.call(1)
		require.Len(t, first.messages, 2)
		assert.Equal(t, provider.RoleSystem, first.messages[0].Role)
		assert.Equal(t, topic, first.messages[1].Content, "no prior turns: raw topic")
		assert.Contains(t, first.messages[0].Content, "first to speak")
		assert.Contains(t, first.messages[0].Content, "You are Bob")

		second := p.call(2)
		assert.Contains(t, second.messages[0].Content, "already spoken: Bob")
		assert.Contains(t, second.messages[1].Content, "Topic: "+topic)
		assert.Contains(t, second.messages[1].Content, "Discussion so far:\n[Bob]: reply 1")
		assert.True(t, strings.HasSuffix(second.messages[1].Content, "Now it's your turn. Share your perspective."))
	})

	t.Run("spoken list carries across rounds", func(t *testing.T) {
		p := &fakeProvider{}
		orch := New(p, &fakeStore{}, nil)

		drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 2, participants())))

		round2Bob := p.call(3)
		assert.Contains(t, round2Bob.messages[0].Content, "already spoken: Bob, Alice")
	})

	t.Run("strips speaker-label artifacts from tokens and persisted text", func(t *testing.T) {
		p := &fakeProvider{turns: map[int]scriptedTurn{
			1: {deltas: []string{"[Bob", "]: Hi", " there"}},
		}}
		st := &fakeStore{}
		orch := New(p, st, nil)

		ps := participants()[1:] // Bob only
		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 1, ps)))

		var streamed strings.Builder
		for _, tok := range byType[events.Token](evs) {
			assert.Equal(t, "p-bob", tok.ParticipantID)
			streamed.WriteString(tok.Content)
		}
		assert.Equal(t, "Hi there", streamed.String())

		ends := byType[events.TurnEnd](evs)
		require.Len(t, ends, 1)
		assert.Equal(t, "Hi there", ends[0].FullContent)

		saved := st.saved()
		require.Len(t, saved, 2, "user message plus one turn")
		assert.Equal(t, "Hi there", saved[1].Content)
	})

	t.Run("persists the user message and every turn", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{}
		orch := New(p, st, nil)

		drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 1, participants())))

		saved := st.saved()
		require.Len(t, saved, 3)
		assert.Equal(t, provider.RoleUser, saved[0].Role)
		assert.Nil(t, saved[0].ParticipantID)
		assert.Equal(t, topic, saved[0].Content)

		require.NotNil(t, saved[1].ParticipantID)
		assert.Equal(t, "p-bob", *saved[1].ParticipantID)
		require.NotNil(t, saved[1].RoundNumber)
		assert.Equal(t, 1, *saved[1].RoundNumber)
	})

	t.Run("upstream failure skips the turn and continues", func(t *testing.T) {
		p := &fakeProvider{turns: map[int]scriptedTurn{
			2: {openErr: errors.New("openrouter error (502): bad gateway")},
		}}
		st := &fakeStore{}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 2, participants())))

		errs := byType[events.Error](evs)
		require.Len(t, errs, 1)
		assert.Equal(t, "p-alice", errs[0].ParticipantID)
		assert.Contains(t, errs[0].Message, "502")

		assert.Equal(t, 4, p.callCount(), "remaining turns still run")
		assert.Len(t, byType[events.TurnEnd](evs), 3)
		assert.Len(t, st.saved(), 4, "user message plus three successful turns")

		// The failed turn must not leak into later prompts.
		round2 := p.call(3)
		assert.NotContains(t, round2.messages[1].Content, "[Alice]")
		assert.Contains(t, round2.messages[0].Content, "already spoken: Bob.", "Alice never spoke")
		assert.NotContains(t, round2.messages[0].Content, "already spoken: Bob, Alice")
	})

	t.Run("mid-stream failure emits partial tokens then an error, persists nothing", func(t *testing.T) {
		p := &fakeProvider{turns: map[int]scriptedTurn{
			1: {deltas: []string{"partial"}, midErr: errors.New("connection reset")},
		}}
		st := &fakeStore{}
		orch := New(p, st, nil)

		ps := participants()[1:]
		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 1, ps)))

		assert.Len(t, byType[events.Token](evs), 1)
		require.Len(t, byType[events.Error](evs), 1)
		assert.Empty(t, byType[events.TurnEnd](evs))
		assert.Len(t, st.saved(), 1, "only the user message")
	})

	t.Run("cancel before round 2 schedules no further turns", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		p := &fakeProvider{}
		st := &fakeStore{}
		st.onCreate = func(msg api.Message) {
			// msg-1 is the user message; msg-3 closes round 1.
			if msg.ID == "msg-3" {
				cancel()
			}
		}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(ctx, newRequest(api.ModeRoundRobin, 3, participants())))

		assert.Equal(t, 2, p.callCount(), "rounds 2 and 3 never start")
		assert.Empty(t, byType[events.Error](evs), "the abort is not an error")

		completes := byType[events.DiscussionComplete](evs)
		require.Len(t, completes, 1, "terminal event survives cancellation")
		assert.Equal(t, 3, completes[0].TotalRounds)
	})

	t.Run("persistence failure keeps the run alive", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{failErr: errors.New("disk full")}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeRoundRobin, 1, participants())))

		ends := byType[events.TurnEnd](evs)
		require.Len(t, ends, 2)
		for _, end := range ends {
			assert.Empty(t, end.MessageID)
		}
		assert.Empty(t, byType[events.Error](evs))
		require.Len(t, byType[events.DiscussionComplete](evs), 1)
	})
}

func moderatedParticipants() []api.Participant {
	return append(participants(),
		api.Participant{ID: "p-max", ConversationID: "c1", ModelID: "google/gemini-2.5-pro-preview", DisplayName: "Max", Role: api.RoleModerator, OrderIndex: 0},
	)
}

func TestModerated(t *testing.T) {
	t.Run("phase sequence and invocation counts", func(t *testing.T) {
		p := &fakeProvider{}
		orch := New(p, &fakeStore{}, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeModerated, 2, moderatedParticipants())))

		// 1 open + R direct + (R-1) summarize + 1 conclude = 5 moderator
		// turns, plus P×R = 4 participant turns.
		starts := byType[events.TurnStart](evs)
		require.Len(t, starts, 9)

		var moderatorTurns, participantTurns int
		for _, s := range starts {
			if s.ParticipantID == "p-max" {
				moderatorTurns++
			} else {
				participantTurns++
			}
		}
		assert.Equal(t, 5, moderatorTurns)
		assert.Equal(t, 4, participantTurns)

		rounds := make([]int, len(starts))
		for i, s := range starts {
			rounds[i] = s.Round
		}
		assert.Equal(t, []int{0, 1, 1, 1, 1, 2, 2, 2, 2}, rounds)

		sysOf := func(n int) string { return p.call(n).messages[0].Content }
		assert.Contains(t, sysOf(1), "Open the discussion")
		assert.Contains(t, sysOf(2), "posing a specific question")
		assert.Contains(t, sysOf(2), "round 1 of 2")
		assert.Contains(t, sysOf(5), "summarize the key insights")
		assert.Contains(t, sysOf(6), "round 2 of 2")
		assert.Contains(t, sysOf(9), "final synthesis")
	})

	t.Run("participants see the moderator as a peer and prior speaker", func(t *testing.T) {
		p := &fakeProvider{}
		orch := New(p, &fakeStore{}, nil)

		drain(orch.Orchestrate(t.Context(), newRequest(api.ModeModerated, 1, moderatedParticipants())))

		// Call 3 is the first non-moderator turn of round 1.
		firstParticipant := p.call(3)
		assert.Contains(t, firstParticipant.messages[0].Content, "Moderator: Max")
		assert.Contains(t, firstParticipant.messages[0].Content, "already spoken: Max")
		assert.Contains(t, firstParticipant.messages[1].Content, "[Moderator - Max]:")
	})

	t.Run("conclusion is labeled with the final round and persisted", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeModerated, 2, moderatedParticipants())))

		ends := byType[events.TurnEnd](evs)
		last := ends[len(ends)-1]
		assert.Equal(t, "p-max", last.ParticipantID)
		assert.Equal(t, 2, last.Round)

		saved := st.saved()
		conclusion := saved[len(saved)-1]
		require.NotNil(t, conclusion.RoundNumber)
		assert.Equal(t, 2, *conclusion.RoundNumber)
	})

	t.Run("missing moderator is a configuration error before any model call", func(t *testing.T) {
		p := &fakeProvider{}
		st := &fakeStore{}
		orch := New(p, st, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeModerated, 2, participants())))

		require.Len(t, evs, 2)
		errEv, ok := evs[0].(events.Error)
		require.True(t, ok)
		assert.Equal(t, "no moderator designated", errEv.Message)
		assert.Empty(t, errEv.ParticipantID)
		assert.IsType(t, events.DiscussionComplete{}, evs[1])

		assert.Zero(t, p.callCount())
		assert.Len(t, st.saved(), 1, "only the user message")
	})

	t.Run("failed moderator turn does not end the discussion", func(t *testing.T) {
		p := &fakeProvider{turns: map[int]scriptedTurn{
			1: {openErr: errors.New("model offline")},
		}}
		orch := New(p, &fakeStore{}, nil)

		evs := drain(orch.Orchestrate(t.Context(), newRequest(api.ModeModerated, 1, moderatedParticipants())))

		require.Len(t, byType[events.Error](evs), 1)
		// open failed, but direct + 2 participants + conclude still ran
		assert.Equal(t, 5, p.callCount())

		// With the opening lost, the first participant is told nobody
		// has spoken yet.
		firstParticipant := p.call(3)
		assert.Contains(t, firstParticipant.messages[0].Content, "first to speak")
	})
}
