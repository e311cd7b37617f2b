// Package orchestrator drives multi-model discussions. The scheduler
// owns the discussion history and visits participants in protocol order
// (round-robin or moderated); each visit is one turn: build the prompt
// from the accumulated history, stream the model's answer, strip the
// speaker-label artifact models sometimes echo, persist the finished
// message, and emit lifecycle events to the caller's channel.
//
// Turns within a run are strictly sequential. Every turn's prompt
// depends on all previous turns' output, so there is nothing to win by
// overlapping model calls; this is a correctness constraint.
package orchestrator
