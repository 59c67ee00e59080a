// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// TokenEncoding is the BPE used for counting. Models differ, so counts are
// an estimate for context warnings only.
const TokenEncoding = "cl100k_base"

// ContextWarningRatio is the share of the context window that raises the
// context warning flag.
const ContextWarningRatio = 0.75

// Encoder turns text into tokens. *tiktoken.Tiktoken satisfies it.
type Encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// TokenCounter counts tokens, falling back to four bytes per token when no
// encoder is available. The BPE ranks are embedded in the binary, so
// loading never touches the network.
type TokenCounter struct {
	once sync.Once
	load func() (Encoder, error)
	enc  Encoder
}

var offlineRanks sync.Once

// NewTokenCounter loads the tiktoken encoding lazily on first use.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{load: func() (Encoder, error) {
		offlineRanks.Do(func() {
			tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		})
		return tiktoken.GetEncoding(TokenEncoding)
	}}
}

// NewTokenCounterWith uses enc; nil selects the length fallback.
func NewTokenCounterWith(enc Encoder) *TokenCounter {
	return &TokenCounter{load: func() (Encoder, error) { return enc, nil }}
}

// Count returns the token count of text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		if enc, err := c.load(); err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from a real encoder.
func (c *TokenCounter) Exact() bool {
	c.Count("x")
	return c.enc != nil
}
