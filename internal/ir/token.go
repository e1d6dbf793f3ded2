package ir

import "math"

// TokenID identifies a dictionary token within one context.
//
// Ids are assigned densely upward from MinTokenID and are never reused,
// which keeps graph references stable across bans and unbans.
type TokenID int32

const (
	// MinTokenID is the id given to the first token of an empty dictionary.
	MinTokenID TokenID = math.MinInt32

	// MaxTokenID is the last assignable id.
	MaxTokenID TokenID = math.MaxInt32
)

// TokenRef pairs a token's canonical text with its id.
type TokenRef struct {
	Text string  `json:"text"`
	ID   TokenID `json:"id"`
}
