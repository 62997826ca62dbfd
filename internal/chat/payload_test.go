package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePayloadMalformedDegradesToRawText(t *testing.T) {
	p := ParsePayload("{not json")

	assert.Equal(t, "{not json", p.Text)
	assert.Nil(t, p.FileTree)
}

func TestParsePayloadTextOnly(t *testing.T) {
	p := ParsePayload(`{"text":"all done"}`)

	assert.Equal(t, "all done", p.Text)
	assert.Nil(t, p.FileTree)
}

func TestParsePayloadWithFileTree(t *testing.T) {
	p := ParsePayload(`{"text":"done","fileTree":{"a.js":{"file":{"contents":"1"}}}}`)

	assert.Equal(t, "done", p.Text)
	assert.Len(t, p.FileTree, 1)
	assert.Equal(t, "1", p.FileTree["a.js"].Contents())
}

func TestParsePayloadNonObjectJSON(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `"plain string"`, `42`, ``} {
		p := ParsePayload(raw)
		assert.Equal(t, raw, p.Text, "raw %q should degrade to itself", raw)
		assert.Nil(t, p.FileTree)
	}
}

func TestParsePayloadEmptyFileTreeTreatedAsAbsent(t *testing.T) {
	p := ParsePayload(`{"text":"ok","fileTree":{}}`)

	assert.Nil(t, p.FileTree)
}
