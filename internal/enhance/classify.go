// Package enhance rewrites Feishu traffic around the agent: it resolves
// effectively empty inbound messages to the message they quote, and normalizes
// outbound replies for the Feishu rendering surface.
package enhance

import (
	"strings"

	"github.com/memohai/lark-enhance/internal/channel"
)

// Verdict is the outcome of classifying an inbound message.
type Verdict int

const (
	// PassThrough leaves the message to normal handling.
	PassThrough Verdict = iota
	// Decline marks content the enhancer cannot interpret (images, voice, files).
	Decline
	// Substitute replaces the message with resolved text.
	Substitute
)

func (v Verdict) String() string {
	switch v {
	case PassThrough:
		return "pass_through"
	case Decline:
		return "decline"
	case Substitute:
		return "substitute"
	default:
		return "unknown"
	}
}

// Classification is the result of one scan over a message's parts.
// SourceID is only set for Substitute.
type Classification struct {
	Verdict  Verdict
	SourceID string
}

// Action is what the host should do with an inbound message.
type Action struct {
	Verdict Verdict
	Text    string
	// Quoted is set when Text was resolved from the quoted message.
	Quoted bool
}

// Classify decides from the part kinds alone whether msg carries user content.
// Unsupported kinds win over any other content regardless of part order.
func Classify(msg channel.Message) Classification {
	var (
		sourceID     string
		otherContent bool
	)
	for _, part := range msg.Parts {
		switch part.Type {
		case channel.MessagePartImage, channel.MessagePartVoice, channel.MessagePartFile:
			return Classification{Verdict: Decline}
		case channel.MessagePartSource:
			if sourceID == "" {
				sourceID = strings.TrimSpace(part.MessageID)
			}
		case channel.MessagePartMention:
		default:
			otherContent = true
		}
	}
	if otherContent {
		return Classification{Verdict: PassThrough}
	}
	return Classification{Verdict: Substitute, SourceID: sourceID}
}
