package chatstate

// Payloads published on the bus under the chat. and presence. namespaces.

type MessageAppended struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
}

type MessageRead struct {
	MessageID string `json:"messageId"`
}

type HistoryLoaded struct {
	ConversationID string `json:"conversationId"`
	Added          int    `json:"added"`
	HasMore        bool   `json:"hasMore"`
}

type ActiveChanged struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type UnreadChanged struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
}

type TypingChanged struct {
	ConversationID string   `json:"conversationId"`
	Users          []string `json:"users"`
}

type PaneStateChanged struct {
	ConversationID string    `json:"conversationId"`
	From           PaneState `json:"from"`
	To             PaneState `json:"to"`
}

type ConversationsChanged struct {
	Count int `json:"count"`
}

type PresenceChange struct {
	UserID string `json:"userId,omitempty"`
	Online bool   `json:"online"`
	// Replaced is set when the whole online set was swapped.
	Replaced bool `json:"replaced,omitempty"`
	Count    int  `json:"count"`
}
