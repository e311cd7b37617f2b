// Package prompt builds the instruction text for every kind of turn.
// Everything here is a pure function over its inputs; no I/O, no state.
package prompt

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Turn is one entry of the accumulated discussion history. The first
// turn is always the user's topic; later turns carry speaker-labeled
// assistant content.
type Turn struct {
	Role    string
	Content string
}

// Phase names the moderator's four jobs within a moderated discussion.
type Phase string

const (
	PhaseOpen        Phase = "open"
	PhaseDirectRound Phase = "direct_round"
	PhaseSummarize   Phase = "summarize"
	PhaseConclude    Phase = "conclude"
)

// ParticipantContext carries the inputs for a regular participant's
// system prompt.
type ParticipantContext struct {
	DisplayName       string
	OtherParticipants []string
	Round             int
	MaxRounds         int
	SpokenBefore      []string
}

// ModeratorContext carries the inputs for a moderator's system prompt.
// Round and MaxRounds are only consulted by the phases that mention them.
type ModeratorContext struct {
	DisplayName  string
	Participants []string
	Phase        Phase
	Round        int
	MaxRounds    int
}

const languageRule = `IMPORTANT: You MUST respond in the same language as the user's message. If the user writes in Chinese, respond entirely in Chinese. If in English, respond in English. Match the user's language exactly.`

const noLabelRule = `IMPORTANT: Do NOT prefix your response with your name or any label like "[Name]:". Just respond directly.`

// Participant builds the system prompt for one regular participant turn.
// When nobody has spoken yet the prompt forbids referencing others;
// afterwards it names the prior speakers and forbids repeating them.
func Participant(ctx ParticipantContext) string {
	hasSpoken := len(ctx.SpokenBefore) > 0

	speakerContext := "You are the first to speak. No other participant has spoken yet — do NOT reference or cite other participants."
	if hasSpoken {
		speakerContext = fmt.Sprintf(
			"Participants who have already spoken: %s. You can reference and build on their points.",
			strings.Join(ctx.SpokenBefore, ", "),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, participating in a group discussion with other AI models.\n", ctx.DisplayName)
	fmt.Fprintf(&b, "This is round %d of %d.\n\n", ctx.Round, ctx.MaxRounds)
	fmt.Fprintf(&b, "Other participants: %s\n", strings.Join(ctx.OtherParticipants, ", "))
	b.WriteString(speakerContext)
	b.WriteString("\n\nGuidelines:\n")
	b.WriteString("- " + languageRule + "\n")
	b.WriteString("- Be concise (2-3 paragraphs max).\n")
	b.WriteString("- " + noLabelRule + "\n")
	if hasSpoken {
		b.WriteString("- You may agree, disagree, or add nuance to points already made.\n")
		b.WriteString("- Address others by name when responding to their specific points.\n")
		b.WriteString("- Do NOT repeat what others have already said.\n")
	} else {
		b.WriteString("- Share your own unique analysis of the topic.\n")
	}
	b.WriteString("- Bring your unique perspective and reasoning style.")
	return b.String()
}

// Moderator builds the system prompt for one moderator turn in the
// given phase.
func Moderator(ctx ModeratorContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the moderator of a group discussion between AI models.\n", ctx.DisplayName)
	fmt.Fprintf(&b, "Participants: %s\n\n", strings.Join(ctx.Participants, ", "))
	b.WriteString(noLabelRule + "\n")
	b.WriteString(languageRule)

	switch ctx.Phase {
	case PhaseOpen:
		b.WriteString("\n\nYour role now: Open the discussion by framing the topic. Introduce the key questions and angles to explore. Be concise (1-2 paragraphs). End by inviting participants to share their perspectives.")
	case PhaseDirectRound:
		fmt.Fprintf(&b, "\nThis is round %d of %d.\n", ctx.Round, ctx.MaxRounds)
		b.WriteString("\nYour role now: Guide this round by posing a specific question or highlighting a point of tension from previous responses. Direct the conversation to explore new angles. Be brief (1-2 sentences).")
	case PhaseSummarize:
		fmt.Fprintf(&b, "\nRound %d of %d just ended.\n", ctx.Round, ctx.MaxRounds)
		b.WriteString("\nYour role now: Briefly summarize the key insights, agreements, and disagreements from this round. Highlight any particularly interesting or novel points. Be concise (1-2 paragraphs).")
	case PhaseConclude:
		fmt.Fprintf(&b, "\nThe discussion has concluded after %d rounds.\n", ctx.MaxRounds)
		b.WriteString("\nYour role now: Provide a final synthesis of all perspectives. Summarize the main takeaways, areas of consensus, remaining disagreements, and any actionable insights. Be thorough but concise (2-3 paragraphs).")
	}
	return b.String()
}

// Independent is the system prompt for a standalone (non-discussion)
// answer.
func Independent() string {
	return "You are a helpful AI assistant. Provide a thoughtful and comprehensive response to the user's question. " + languageRule
}

// LanguageHint detects the topic's language and, when detection is
// reliable, returns a line naming it to reinforce the same-language
// rule. Returns the empty string otherwise.
func LanguageHint(topic string) string {
	info := whatlanggo.Detect(topic)
	if !info.IsReliable() {
		return ""
	}
	return fmt.Sprintf("The user's message is written in %s; respond in %s.", info.Lang.String(), info.Lang.String())
}

// Consolidate flattens the history into the single user message sent
// upstream. Some providers reject a message list ending in an assistant
// role, so every prior turn is packed into one user-role message. With
// no prior turns the topic passes through unmodified.
func Consolidate(history []Turn) string {
	if len(history) == 0 {
		return ""
	}

	topic := history[0].Content
	prior := history[1:]
	if len(prior) == 0 {
		return topic
	}

	contents := make([]string, len(prior))
	for i, turn := range prior {
		contents[i] = turn.Content
	}
	return fmt.Sprintf(
		"Topic: %s\n\nDiscussion so far:\n%s\n\nNow it's your turn. Share your perspective.",
		topic,
		strings.Join(contents, "\n\n"),
	)
}
