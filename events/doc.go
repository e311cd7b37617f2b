// Package events defines the turn-lifecycle events a discussion run
// produces, as a closed set of variants discriminated by a "type" field.
//
// The five variants:
//   - TurnStart: a participant is about to speak
//   - Token: an incremental text fragment of the current turn
//   - TurnEnd: the turn finished, with its full text and persisted id
//   - DiscussionComplete: scheduling is over
//   - Error: a turn or the run configuration failed
//
// Events are transient: they exist on the wire and in channels, never in
// the store. The JSON field names are the wire contract with the
// presentation layer; marshaling writes onto preallocated type markers
// and unmarshaling validates the discriminator, so a frame can be decoded
// into the right variant without an intermediate map.
package events
