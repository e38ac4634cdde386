package httpapi

// ThreadMessage is one message as the server reports it.
type ThreadMessage struct {
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
	Content   string `json:"content"`
	Metadata  string `json:"metadata,omitempty"`
	Status    string `json:"status,omitempty"`
	SentAt    int64  `json:"sent_at"`
}

// Contact identifies the remote party of a thread.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ThreadPollResponse is the incremental thread payload.
type ThreadPollResponse struct {
	Messages      []ThreadMessage `json:"messages"`
	LastMessageID int64           `json:"last_message_id"`
	HasMore       bool            `json:"has_more"`
	BeforeIDNext  int64           `json:"before_id_next"`
	Contact       *Contact        `json:"contact"`
	ThreadUnread  int             `json:"thread_unread"`
}

// PanelItem is one conversation row inside a panel.
type PanelItem struct {
	ThreadID  int64  `json:"thread_id"`
	Contact   string `json:"contact"`
	Preview   string `json:"preview"`
	Unread    int    `json:"unread"`
	UpdatedAt int64  `json:"updated_at"`
}

// Panel is one queue's snapshot. The server sends either structured items
// or a pre-rendered html block, never both.
type Panel struct {
	Count  int         `json:"count"`
	Unread int         `json:"unread"`
	Items  []PanelItem `json:"items,omitempty"`
	HTML   string      `json:"html,omitempty"`
	Empty  bool        `json:"empty"`
	Meta   []string    `json:"meta,omitempty"`
}

// PanelRefreshResponse maps panel keys to snapshots.
type PanelRefreshResponse struct {
	Panels map[string]Panel `json:"panels"`
}

// GatewayMetrics carries the bridge's last-activity timestamps and errors.
type GatewayMetrics struct {
	LastIncomingAt  int64  `json:"lastIncomingAt"`
	LastDispatchAt  int64  `json:"lastDispatchAt"`
	LastError       string `json:"lastError"`
	ReconnectReason string `json:"reconnectReason"`
}

// GatewayHistory reports the bridge's history sync capability and progress.
type GatewayHistory struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`
	Synced  bool `json:"synced"`
}

// GatewayInfo is one gateway instance's server-reported state.
type GatewayInfo struct {
	Status  string         `json:"status"`
	Ready   bool           `json:"ready"`
	Session string         `json:"session"`
	Metrics GatewayMetrics `json:"metrics"`
	History GatewayHistory `json:"history"`
}

// GatewayStatusResponse wraps the per-instance status payload.
type GatewayStatusResponse struct {
	Gateway GatewayInfo `json:"gateway"`
}

// QRPayload is a pairing QR code with its lifetime.
type QRPayload struct {
	QR          string `json:"qr"`
	GeneratedAt int64  `json:"generated_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

// ActionResponse is the generic result of gateway start/stop/reset.
type ActionResponse struct {
	Message string `json:"message"`
}

// HistoryStats summarizes a completed history sync.
type HistoryStats struct {
	MessagesForwarded int `json:"messages_forwarded"`
	ChatsWithMessages int `json:"chats_with_messages"`
}

// HistorySyncResponse wraps the history sync summary.
type HistorySyncResponse struct {
	Stats HistoryStats `json:"stats"`
}
