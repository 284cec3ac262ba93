package socket

import "encoding/json"

// InboundKind enumerates every event a client may send, a closed sum so the
// hub's dispatch switch can never silently drop an unhandled variant.
type InboundKind string

// Supported inbound event kinds (spec §4.6 step 3).
const (
	InboundSendMessage       InboundKind = "sendMessage"
	InboundJoinConversation  InboundKind = "joinConversation"
	InboundLeaveConversation InboundKind = "leaveConversation"
	InboundTyping            InboundKind = "typing"
	InboundStopTyping        InboundKind = "stopTyping"
	InboundMessageReceived   InboundKind = "messageReceived"
	InboundMarkRead          InboundKind = "markRead"
	InboundEditMessage       InboundKind = "editMessage"
	InboundDeleteMessage     InboundKind = "deleteMessage"
)

// InboundEnvelope is the wire shape of every client->server frame: a kind
// discriminator plus a raw payload decoded per-kind by the handler.
type InboundEnvelope struct {
	Event   InboundKind     `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SendMessagePayload is the payload of a sendMessage inbound event.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	AttachmentID   string `json:"attachmentId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
}

// ConversationRefPayload is the payload of joinConversation/leaveConversation.
type ConversationRefPayload struct {
	ConversationID string `json:"conversationId"`
}

// TypingPayload is the payload of typing/stopTyping.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// MessageReceivedPayload is the payload of a messageReceived delivery ack.
type MessageReceivedPayload struct {
	MessageID string `json:"messageId"`
}

// MarkReadPayload is the payload of markRead.
type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// EditMessagePayload is the payload of editMessage.
type EditMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// DeleteMessagePayload is the payload of deleteMessage.
type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// Outbound event names (spec §4.6 step 4), passed as ports.OutboundEvent.Event.
const (
	OutboundNewMessage             = "newMessage"
	OutboundMessageStatusChanged   = "messageStatusChanged"
	OutboundMessageRead            = "messageRead"
	OutboundConversationMarkedRead = "conversationMarkedRead"
	OutboundUserTyping             = "userTyping"
	OutboundUserConnected          = "user_connected"
	OutboundUserDisconnected       = "user_disconnected"
	OutboundConversationJoined     = "conversationJoined"
	OutboundAuthenticated          = "authenticated"
	OutboundAuthError              = "auth_error"
	OutboundMessageError           = "message_error"
	OutboundMessageSent            = "message_sent"
)
