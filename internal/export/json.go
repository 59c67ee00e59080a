// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/quietchat/internal/chat"
)

type jsonDocument struct {
	Title    string        `json:"title"`
	Model    string        `json:"model,omitempty"`
	Exported time.Time     `json:"exported"`
	Messages []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// JSON renders the conversation as an indented JSON document.
func JSON(messages []*chat.Message, meta Meta) ([]byte, error) {
	doc := jsonDocument{
		Title:    meta.title(),
		Model:    meta.Model,
		Exported: meta.exported(),
		Messages: make([]jsonMessage, 0, len(messages)),
	}
	for _, m := range messages {
		doc.Messages = append(doc.Messages, jsonMessage{
			ID:        m.ID,
			Role:      string(m.Role),
			Timestamp: m.Timestamp,
			Content:   m.Content(),
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
