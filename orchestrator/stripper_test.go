package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func feedAll(s *prefixStripper, deltas ...string) string {
	var out strings.Builder
	for _, d := range deltas {
		out.WriteString(s.feed(d))
	}
	out.WriteString(s.flush())
	return out.String()
}

func TestPrefixStripper(t *testing.T) {
	t.Run("non-prefixed text is lossless", func(t *testing.T) {
		var s prefixStripper
		assert.Equal(t, "Hello world", feedAll(&s, "Hello world"))
	})

	t.Run("non-prefixed first delta flushes immediately", func(t *testing.T) {
		var s prefixStripper
		assert.Equal(t, "Hel", s.feed("Hel"))
		assert.Equal(t, "lo", s.feed("lo"))
	})

	t.Run("strips a well-formed prefix", func(t *testing.T) {
		var s prefixStripper
		assert.Equal(t, "Hi there", feedAll(&s, "[Claude]: Hi there"))
	})

	t.Run("strips a prefix split across deltas", func(t *testing.T) {
		var s prefixStripper
		assert.Equal(t, "Hi there", feedAll(&s, "[Cla", "ude]", ":", " Hi", " there"))
	})

	t.Run("prefix swallowed whole emits nothing until more text", func(t *testing.T) {
		var s prefixStripper
		assert.Empty(t, s.feed("[Claude]: "))
		assert.Equal(t, "rest", s.feed("rest"))
	})

	t.Run("unresolved bracket flushes verbatim past the limit", func(t *testing.T) {
		var s prefixStripper
		long := "[" + strings.Repeat("x", 200)
		assert.Equal(t, long, feedAll(&s, long), "no content loss")
	})

	t.Run("stream ending mid-buffer flushes the leftover", func(t *testing.T) {
		var s prefixStripper
		assert.Empty(t, s.feed("[short"))
		assert.Equal(t, "[short", s.flush())
	})

	t.Run("flush after passthrough yields nothing", func(t *testing.T) {
		var s prefixStripper
		s.feed("plain")
		assert.Empty(t, s.flush())
	})
}

func TestStripLabel(t *testing.T) {
	assert.Equal(t, "Hi there", stripLabel("[Claude]: Hi there"))
	assert.Equal(t, "Hi there", stripLabel("[Moderator - Claude]:  Hi there "))
	assert.Equal(t, "no label here", stripLabel("no label here"))
	assert.Equal(t, "[not a label", stripLabel("[not a label"))
	assert.Empty(t, stripLabel("[Claude]: "))
}
