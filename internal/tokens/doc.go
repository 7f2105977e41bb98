// Package tokens approximates language-model token counts and bounds text to a token budget.
//
// The estimate is a word-length heuristic, not a tokenizer: short fragments count as half a
// token and long ones as one and a half. It is deterministic and cheap enough to run on every
// keystroke.
package tokens
