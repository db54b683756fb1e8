package cloudapi

// --- WhatsApp webhook payload types ---
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks/components

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Value *webhookValue `json:"value"`
	Field string        `json:"field"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []webhookContact `json:"contacts"`
	Messages         []webhookMessage `json:"messages"`
	Statuses         []webhookStatus  `json:"statuses"`
}

type webhookContact struct {
	WaID    string          `json:"wa_id"`
	Profile *webhookProfile `json:"profile,omitempty"`
}

type webhookProfile struct {
	Name string `json:"name"`
}

type webhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *webhookText        `json:"text,omitempty"`
	Interactive *webhookInteractive `json:"interactive,omitempty"`
	Button      *webhookButton      `json:"button,omitempty"`
}

type webhookText struct {
	Body *string `json:"body"`
}

// webhookInteractive is a reply to an interactive message (reply buttons or a list).
type webhookInteractive struct {
	Type        string        `json:"type"`
	ButtonReply *webhookReply `json:"button_reply,omitempty"`
	ListReply   *webhookReply `json:"list_reply,omitempty"`
}

type webhookReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// webhookButton is a quick-reply button tapped on a template message.
type webhookButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// --- Outbound message schema ---
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/reference/messages

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type,omitempty"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *sendText     `json:"text,omitempty"`
	Template         *sendTemplate `json:"template,omitempty"`
}

type sendText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendTemplate struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"` // header | body
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type  string         `json:"type"` // text | image
	Text  string         `json:"text,omitempty"`
	Image *templateImage `json:"image,omitempty"`
}

type templateImage struct {
	Link string `json:"link"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
