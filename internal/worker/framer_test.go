package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framedStrings(lines [][]byte) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, string(l))
	}
	return out
}

func TestLineFramer_CompleteLines(t *testing.T) {
	f := NewLineFramer()

	got := f.Push([]byte("one\ntwo\nthree\n"))

	assert.Equal(t, []string{"one", "two", "three"}, framedStrings(got))
	assert.Zero(t, f.Buffered())
}

func TestLineFramer_PartialChunks(t *testing.T) {
	f := NewLineFramer()

	assert.Empty(t, f.Push([]byte(`{"type":"ev`)))
	assert.Equal(t, len(`{"type":"ev`), f.Buffered())

	got := f.Push([]byte("ent\"}\n{\"type\""))
	assert.Equal(t, []string{`{"type":"event"}`}, framedStrings(got))

	got = f.Push([]byte(":\"hello\"}\n"))
	assert.Equal(t, []string{`{"type":"hello"}`}, framedStrings(got))
}

func TestLineFramer_EveryByteBoundary(t *testing.T) {
	stream := "{\"step\":\"a\"}\n{\"step\":\"b\"}\r\n{\"step\":\"c\"}\n"

	for split := 0; split <= len(stream); split++ {
		f := NewLineFramer()
		var got []string
		got = append(got, framedStrings(f.Push([]byte(stream[:split])))...)
		got = append(got, framedStrings(f.Push([]byte(stream[split:])))...)

		require.Equal(t, []string{`{"step":"a"}`, `{"step":"b"}`, `{"step":"c"}`}, got, "split at %d", split)
	}
}

func TestLineFramer_SingleByteChunks(t *testing.T) {
	stream := "alpha\nbeta\ngamma\n"
	f := NewLineFramer()

	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, framedStrings(f.Push([]byte{stream[i]}))...)
	}

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, got)
}

func TestLineFramer_MultiByteCharacterAcrossChunks(t *testing.T) {
	line := `{"message":"Přepis dokončen ✓"}`
	data := []byte(line + "\n")
	// Split inside the three-byte check mark.
	idx := strings.Index(line, "✓") + 1

	f := NewLineFramer()
	first := f.Push(data[:idx])
	second := f.Push(data[idx:])

	assert.Empty(t, first)
	require.Len(t, second, 1)
	assert.Equal(t, line, string(second[0]))
}

func TestLineFramer_SkipsBlankLines(t *testing.T) {
	f := NewLineFramer()

	got := f.Push([]byte("\n  \nvalue\n\r\n"))

	assert.Equal(t, []string{"value"}, framedStrings(got))
}

func TestLineFramer_FlushUnterminated(t *testing.T) {
	f := NewLineFramer()
	f.Push([]byte("first\nlast-without-newline"))

	line, ok := f.Flush()
	require.True(t, ok)
	assert.Equal(t, "last-without-newline", string(line))

	_, ok = f.Flush()
	assert.False(t, ok, "second flush should be empty")
}

func TestLineFramer_FlushEmpty(t *testing.T) {
	f := NewLineFramer()
	f.Push([]byte("done\n"))

	_, ok := f.Flush()
	assert.False(t, ok)
}

func TestLineFramer_ReturnedLinesAreIndependent(t *testing.T) {
	f := NewLineFramer()
	chunk := []byte("abc\ndef\n")

	got := f.Push(chunk)
	copy(chunk, "XXXXXXXX")

	assert.Equal(t, []string{"abc", "def"}, framedStrings(got))
}
