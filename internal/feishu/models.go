package feishu

// --- Incoming webhook payload ---
// Both envelope generations are accepted: the 1.0 schema carries token and
// type at the top level, the 2.0 schema moves them under header.
// Reference: https://open.feishu.cn/document/server-docs/event-subscription-guide/event-subscription-configure-/request-url-configuration-case

type webhookEnvelope struct {
	Schema    string         `json:"schema"`
	Token     string         `json:"token"`
	Type      string         `json:"type"`
	Challenge string         `json:"challenge"`
	Header    *webhookHeader `json:"header"`
	Event     *webhookEvent  `json:"event"`
}

type webhookHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	Token      string `json:"token"`
	AppID      string `json:"app_id"`
	TenantKey  string `json:"tenant_key"`
	CreateTime string `json:"create_time"`
}

type webhookEvent struct {
	Sender  *Sender  `json:"sender"`
	Message *Message `json:"message"`
}

type Sender struct {
	SenderID   UserID `json:"sender_id"`
	SenderType string `json:"sender_type"`
	TenantKey  string `json:"tenant_key"`
}

type UserID struct {
	OpenID  string `json:"open_id"`
	UnionID string `json:"union_id"`
	UserID  string `json:"user_id"`
}

// Message is the im.message.receive_v1 message object. Content is a JSON
// document encoded as a string, e.g. "{\"text\":\"hi\"}" for text messages.
type Message struct {
	MessageID   string    `json:"message_id"`
	RootID      string    `json:"root_id,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	CreateTime  string    `json:"create_time,omitempty"`
	ChatID      string    `json:"chat_id"`
	ChatType    string    `json:"chat_type,omitempty"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Mentions    []Mention `json:"mentions,omitempty"`
}

// Mention describes an @-mention; Key is the placeholder ("@_user_1") that
// stands in for the mention inside the text content.
type Mention struct {
	Key  string `json:"key"`
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

type textContent struct {
	Text string `json:"text"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

type ackResponse struct {
	Msg string `json:"msg"`
}

// --- Auth ---
// Reference: https://open.feishu.cn/document/server-docs/authentication-management/access-token/tenant_access_token_internal

type tenantTokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// --- Outgoing send message (message/v4/send) ---

type sendMessageRequest struct {
	ChatID  string          `json:"chat_id"`
	MsgType string          `json:"msg_type"`
	Content sendTextContent `json:"content"`
}

type sendTextContent struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}
