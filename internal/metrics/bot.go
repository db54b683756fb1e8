package metrics

import (
	"fmt"
	"strconv"
	"time"
)

// Webhook results, used as the result label of webhook_events_total.
const (
	ResultProcessed   = "processed"
	ResultIgnored     = "ignored"
	ResultNoMessage   = "no_message"
	ResultUnsupported = "unsupported"
	ResultMalformed   = "malformed"
	ResultForbidden   = "forbidden"
)

var sendLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Bot records the webhook dispatcher's traffic. A nil *Bot is a no-op.
type Bot struct {
	c *Collector
}

func NewBot(c *Collector) *Bot {
	return &Bot{c: c}
}

func (b *Bot) Collector() *Collector {
	if b == nil {
		return nil
	}
	return b.c
}

func (b *Bot) WebhookEvent(result string) {
	if b == nil {
		return
	}
	b.c.Counter("webhook_events_total", "Webhook deliveries by outcome",
		fmt.Sprintf("result=%q", result)).Inc()
	b.c.Gauge("last_webhook_timestamp_seconds", "Unix time of the last webhook delivery", "").
		Set(time.Now().Unix())
}

func (b *Bot) Intent(id string) {
	if b == nil {
		return
	}
	b.c.Counter("intents_total", "Classified inbound messages by intent",
		fmt.Sprintf("intent=%q", id)).Inc()
}

// Outbound records one Cloud API call. status 0 means the request never got a response.
func (b *Bot) Outbound(kind string, status int, d time.Duration) {
	if b == nil {
		return
	}
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	b.c.Counter("outbound_messages_total", "Messages sent through the Cloud API by type and status",
		fmt.Sprintf("type=%q,status=%q", kind, code)).Inc()
	b.c.Histogram("outbound_latency_seconds", "Cloud API send latency in seconds",
		fmt.Sprintf("type=%q", kind), sendLatencyBuckets).Observe(d.Seconds())
}

func (b *Bot) Handoff() {
	if b == nil {
		return
	}
	b.c.Counter("handoffs_total", "Customers who asked for a person", "").Inc()
}
