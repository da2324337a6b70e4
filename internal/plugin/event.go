// Package plugin is the host side of the message plugin seam: plugins attach
// handlers to message lifecycle events and steer handling through an
// EventContext.
package plugin

import "github.com/memohai/lark-enhance/internal/channel"

// EventType names a point in the message lifecycle.
type EventType string

const (
	// PersonNormalMessageReceived fires for a direct message before it is handled.
	PersonNormalMessageReceived EventType = "person_normal_message_received"
	// GroupNormalMessageReceived fires for a group message before it is handled.
	GroupNormalMessageReceived EventType = "group_normal_message_received"
	// NormalMessageResponded fires after the agent produced a reply.
	NormalMessageResponded EventType = "normal_message_responded"
)

// ReturnReply is the return key whose values are sent as literal replies.
const ReturnReply = "reply"

// Query is the inbound message an event refers to, plus the adapter it came from.
type Query struct {
	Adapter channel.Type
	Message channel.InboundMessage
}

type Event struct {
	Type         EventType
	Query        *Query
	ResponseText string
}

// ReceivedEventType returns the received event matching the conversation kind of msg.
func ReceivedEventType(msg channel.InboundMessage) EventType {
	if msg.Conversation.IsGroup() {
		return GroupNormalMessageReceived
	}
	return PersonNormalMessageReceived
}

// EventContext carries one event through the handler chain.
type EventContext struct {
	Event Event

	alter            string
	altered          bool
	returns          map[string][]string
	preventDefault   bool
	preventPostorder bool
}

func NewEventContext(event Event) *EventContext {
	return &EventContext{Event: event, returns: map[string][]string{}}
}

// SetAlter replaces the effective text of the event.
func (c *EventContext) SetAlter(text string) {
	c.alter = text
	c.altered = true
}

// Alter returns the replaced text and whether a handler set one.
func (c *EventContext) Alter() (string, bool) {
	return c.alter, c.altered
}

func (c *EventContext) AddReturn(key string, values ...string) {
	c.returns[key] = append(c.returns[key], values...)
}

func (c *EventContext) Returns(key string) []string {
	values := c.returns[key]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// PreventDefault suppresses the host's default handling of the event.
func (c *EventContext) PreventDefault() {
	c.preventDefault = true
}

func (c *EventContext) IsPreventDefault() bool {
	return c.preventDefault
}

// PreventPostorder stops handlers registered after the current one.
func (c *EventContext) PreventPostorder() {
	c.preventPostorder = true
}

func (c *EventContext) IsPreventPostorder() bool {
	return c.preventPostorder
}
