package chat

import (
	"encoding/json"

	"devroom/internal/filetree"
)

// Payload is the decoded form of an AI message body: display text plus an
// optional file tree fragment mapping.
type Payload struct {
	Text     string
	FileTree filetree.Tree
}

// ParsePayload decodes a raw AI payload. Parsing is total: AI output is
// untrusted and may be truncated or malformed, so any decode failure
// degrades to the raw text with no file tree instead of an error. A payload
// that decodes but lacks a fileTree field contributes no files.
func ParsePayload(raw string) Payload {
	var decoded struct {
		Text     string        `json:"text"`
		FileTree filetree.Tree `json:"fileTree"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return Payload{Text: raw}
	}
	if len(decoded.FileTree) == 0 {
		return Payload{Text: decoded.Text}
	}
	return Payload{Text: decoded.Text, FileTree: decoded.FileTree}
}
