package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParticipant(t *testing.T) {
	t.Run("first speaker is told not to reference others", func(t *testing.T) {
		p := Participant(ParticipantContext{
			DisplayName:       "Claude",
			OtherParticipants: []string{"GPT-4o", "Gemini"},
			Round:             1,
			MaxRounds:         3,
		})

		assert.Contains(t, p, "You are Claude")
		assert.Contains(t, p, "round 1 of 3")
		assert.Contains(t, p, "do NOT reference or cite other participants")
		assert.Contains(t, p, "Share your own unique analysis")
		assert.NotContains(t, p, "already spoken:")
	})

	t.Run("later speakers are told who spoke", func(t *testing.T) {
		p := Participant(ParticipantContext{
			DisplayName:       "Gemini",
			OtherParticipants: []string{"Claude", "GPT-4o"},
			Round:             2,
			MaxRounds:         3,
			SpokenBefore:      []string{"Claude", "GPT-4o"},
		})

		assert.Contains(t, p, "already spoken: Claude, GPT-4o")
		assert.Contains(t, p, "Do NOT repeat what others have already said")
	})

	t.Run("always forbids name labels", func(t *testing.T) {
		p := Participant(ParticipantContext{DisplayName: "X", Round: 1, MaxRounds: 1})
		assert.Contains(t, p, `any label like "[Name]:"`)
	})
}

func TestModerator(t *testing.T) {
	base := ModeratorContext{
		DisplayName:  "Claude",
		Participants: []string{"GPT-4o", "Gemini"},
		Round:        2,
		MaxRounds:    3,
	}

	phases := map[Phase]string{
		PhaseOpen:        "Open the discussion by framing the topic",
		PhaseDirectRound: "posing a specific question",
		PhaseSummarize:   "summarize the key insights",
		PhaseConclude:    "final synthesis of all perspectives",
	}
	for phase, marker := range phases {
		ctx := base
		ctx.Phase = phase
		p := Moderator(ctx)
		assert.Contains(t, p, marker, "phase %s", phase)
		assert.Contains(t, p, "the moderator of a group discussion")
		assert.Contains(t, p, "Participants: GPT-4o, Gemini")
	}

	ctx := base
	ctx.Phase = PhaseDirectRound
	assert.Contains(t, Moderator(ctx), "round 2 of 3")

	ctx.Phase = PhaseConclude
	assert.Contains(t, Moderator(ctx), "concluded after 3 rounds")
}

func TestConsolidate(t *testing.T) {
	t.Run("no prior turns passes the topic through", func(t *testing.T) {
		got := Consolidate([]Turn{{Role: "user", Content: "Is P equal to NP?"}})
		assert.Equal(t, "Is P equal to NP?", got)
	})

	t.Run("prior turns are packed under headers", func(t *testing.T) {
		got := Consolidate([]Turn{
			{Role: "user", Content: "Is P equal to NP?"},
			{Role: "assistant", Content: "[Claude]: Probably not."},
			{Role: "assistant", Content: "[GPT-4o]: Agreed."},
		})

		assert.True(t, strings.HasPrefix(got, "Topic: Is P equal to NP?"))
		assert.Contains(t, got, "Discussion so far:\n[Claude]: Probably not.\n\n[GPT-4o]: Agreed.")
		assert.True(t, strings.HasSuffix(got, "Now it's your turn. Share your perspective."))
	})

	t.Run("empty history yields empty string", func(t *testing.T) {
		assert.Empty(t, Consolidate(nil))
	})
}

func TestLanguageHint(t *testing.T) {
	t.Run("reliable detection names the language", func(t *testing.T) {
		hint := LanguageHint("Should governments regulate artificial intelligence, and if so, how far should that regulation reach?")
		assert.Contains(t, hint, "English")
	})

	t.Run("unreliable detection yields nothing", func(t *testing.T) {
		assert.Empty(t, LanguageHint("ok"))
	})
}

func TestIndependent(t *testing.T) {
	p := Independent()
	assert.Contains(t, p, "helpful AI assistant")
	assert.Contains(t, p, "same language")
}
