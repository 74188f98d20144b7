package models

import "time"

// Embed is a rich message posted to a community stream by the bot runtime.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DirectMessage is a best-effort notification to a single identity.
type DirectMessage struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Embed  *Embed `json:"embed,omitempty"`
}
