package httpapi

import (
	"context"
	"net/url"
	"strconv"
)

// ThreadPollParams selects which slice of a thread to fetch.
type ThreadPollParams struct {
	ThreadID      int64
	LastMessageID int64
	BeforeID      int64 // when set, page backwards instead of forward
	Limit         int
	Prefetch      bool
}

// ThreadPoll fetches messages newer than last_message_id, or an older page
// when BeforeID is set.
func (c *Client) ThreadPoll(ctx context.Context, p ThreadPollParams) (*ThreadPollResponse, error) {
	q := url.Values{}
	q.Set("thread_id", strconv.FormatInt(p.ThreadID, 10))
	q.Set("last_message_id", strconv.FormatInt(p.LastMessageID, 10))
	if p.BeforeID > 0 {
		q.Set("before_id", strconv.FormatInt(p.BeforeID, 10))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Prefetch {
		q.Set("prefetch", "1")
	}
	var out ThreadPollResponse
	if _, err := c.getJSON(ctx, "thread-poll", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PanelRefreshParams selects which panels to render and how.
type PanelRefreshParams struct {
	Standalone bool
	Compact    bool
	Channel    string
	Thread     int64 // currently open thread, for row highlighting
	Search     string
}

// PanelRefresh fetches the current snapshot of every visible panel.
func (c *Client) PanelRefresh(ctx context.Context, p PanelRefreshParams) (*PanelRefreshResponse, error) {
	q := url.Values{}
	if p.Standalone {
		q.Set("standalone", "1")
	}
	if p.Compact {
		q.Set("compact", "1")
	}
	if p.Channel != "" {
		q.Set("channel", p.Channel)
	}
	if p.Thread > 0 {
		q.Set("thread", strconv.FormatInt(p.Thread, 10))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	var out PanelRefreshResponse
	if _, err := c.getJSON(ctx, "panel-refresh", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GatewayStatus fetches one instance's current status.
func (c *Client) GatewayStatus(ctx context.Context, instance string) (*GatewayStatusResponse, error) {
	q := url.Values{}
	q.Set("instance", instance)
	var out GatewayStatusResponse
	if _, err := c.getJSON(ctx, "gateway-status", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GatewayQR fetches the pairing QR. A 204 means the session is already
// paired: the returned payload is nil and paired is true. A 200 with an
// empty qr field means no QR is available yet.
func (c *Client) GatewayQR(ctx context.Context, instance string) (qr *QRPayload, paired bool, err error) {
	q := url.Values{}
	q.Set("instance", instance)
	var out QRPayload
	hasBody, err := c.getJSON(ctx, "gateway-qr", q, &out)
	if err != nil {
		return nil, false, err
	}
	if !hasBody {
		return nil, true, nil
	}
	return &out, false, nil
}

// GatewayReset asks the server to reset the bridge session.
func (c *Client) GatewayReset(ctx context.Context, instance string) (*ActionResponse, error) {
	return c.gatewayAction(ctx, "gateway-reset", instance)
}

// GatewayStart asks the server to start the bridge.
func (c *Client) GatewayStart(ctx context.Context, instance string) (*ActionResponse, error) {
	return c.gatewayAction(ctx, "gateway-start", instance)
}

// GatewayStop asks the server to stop the bridge.
func (c *Client) GatewayStop(ctx context.Context, instance string) (*ActionResponse, error) {
	return c.gatewayAction(ctx, "gateway-stop", instance)
}

func (c *Client) gatewayAction(ctx context.Context, name, instance string) (*ActionResponse, error) {
	form := url.Values{}
	form.Set("instance", instance)
	var out ActionResponse
	if err := c.postForm(ctx, name, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History sync modes.
const (
	HistoryModeAll   = "all"
	HistoryModeRange = "range"
	HistoryModeHours = "hours"
)

// Lookback clamp bounds, in minutes.
const (
	MinLookbackMinutes = 5
	MaxLookbackMinutes = 10080
)

// HistorySyncRequest configures a server-side history import.
type HistorySyncRequest struct {
	Instance        string
	Mode            string // all, range, hours
	From            string // range mode, YYYY-MM-DD
	To              string // range mode, YYYY-MM-DD
	LookbackMinutes int    // hours mode, clamped to [5, 10080]
	MaxChats        int
	MaxMessages     int
}

// HistorySync asks the server to import conversation history from the bridge.
func (c *Client) HistorySync(ctx context.Context, r HistorySyncRequest) (*HistorySyncResponse, error) {
	form := url.Values{}
	form.Set("instance", r.Instance)
	mode := r.Mode
	if mode != HistoryModeRange && mode != HistoryModeHours {
		mode = HistoryModeAll
	}
	form.Set("history_mode", mode)
	switch mode {
	case HistoryModeRange:
		form.Set("history_from", r.From)
		form.Set("history_to", r.To)
	case HistoryModeHours:
		form.Set("history_lookback", strconv.Itoa(clampLookback(r.LookbackMinutes)))
	}
	if r.MaxChats > 0 {
		form.Set("history_max_chats", strconv.Itoa(r.MaxChats))
	}
	if r.MaxMessages > 0 {
		form.Set("history_max_messages", strconv.Itoa(r.MaxMessages))
	}
	var out HistorySyncResponse
	if err := c.postForm(ctx, "history-sync", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func clampLookback(minutes int) int {
	if minutes < MinLookbackMinutes {
		return MinLookbackMinutes
	}
	if minutes > MaxLookbackMinutes {
		return MaxLookbackMinutes
	}
	return minutes
}
