package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tienditabot/internal/cloudapi"
	"tienditabot/internal/config"
	"tienditabot/internal/domain"
	"tienditabot/internal/intent"
	"tienditabot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Fakes ---

type sentMessage struct {
	Type, To, Template, NameParam, Body string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	status int
	err    error
}

func (f *fakeSender) SendTemplate(_ context.Context, to, template, nameParam string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Type: "template", To: to, Template: template, NameParam: nameParam})
	return f.status, f.err
}

func (f *fakeSender) SendText(_ context.Context, to, body string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Type: "text", To: to, Body: body})
	return f.status, f.err
}

type fakeLog struct {
	mu  sync.Mutex
	got []domain.Exchange
	err error
}

func (f *fakeLog) Record(_ context.Context, ex domain.Exchange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ex)
	return f.err
}

type fakeNotifier struct {
	got []domain.InboundEvent
}

func (f *fakeNotifier) NotifyHandoff(_ context.Context, ev domain.InboundEvent) error {
	f.got = append(f.got, ev)
	return nil
}

type testBot struct {
	sender    *fakeSender
	log       *fakeLog
	notifier  *fakeNotifier
	collector *metrics.Collector
	handler   http.Handler
}

func newTestBot(t *testing.T, mutate func(*config.Config)) *testBot {
	t.Helper()
	cfg := config.Defaults()
	cfg.WhatsApp.VerifyToken = "latiendita123"
	cfg.WhatsApp.HumanContact = "56912345678"
	if mutate != nil {
		mutate(cfg)
	}

	tb := &testBot{
		sender:    &fakeSender{status: http.StatusOK},
		log:       &fakeLog{},
		notifier:  &fakeNotifier{},
		collector: metrics.NewCollector("tienditabot"),
	}
	logger := testLogger()
	bm := metrics.NewBot(tb.collector)
	classifier := intent.NewClassifier(intent.FromConfig(cfg))

	dispatcher := NewDispatcher(DispatcherConfig{
		Classifier: classifier,
		Sender:     tb.sender,
		Log:        tb.log,
		Notifier:   tb.notifier,
		Metrics:    bm,
		Logger:     logger,
	})
	srv := NewServer(ServerConfig{
		Addr:        "127.0.0.1:0",
		WebhookPath: cfg.WhatsApp.WebhookPath,
		SandboxPath: cfg.Server.SandboxPath,
		MetricsPath: cfg.Metrics.Endpoint,
		MediaFiles:  map[string]string{"welcome": cfg.Media.WelcomeImagePath},
		WhatsApp: NewWhatsApp(WhatsAppConfig{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
			Dispatcher:  dispatcher,
			Metrics:     bm,
			Logger:      logger,
		}),
		Sandbox:   NewSandbox(classifier, logger),
		Collector: tb.collector,
		Logger:    logger,
	})
	tb.handler = srv.Handler()
	return tb
}

func (tb *testBot) do(method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	tb.handler.ServeHTTP(rec, req)
	return rec
}

func textDelivery(from, name, text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "102290129340398",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"contacts":          []any{map[string]any{"wa_id": from, "profile": map[string]any{"name": name}}},
					"messages": []any{map[string]any{
						"from": from, "id": "wamid.test", "timestamp": "1718000000",
						"type": "text", "text": map[string]any{"body": text},
					}},
				},
			}},
		}},
	})
	return body
}

func buttonDelivery(from, title string) []byte {
	body, _ := json.Marshal(map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"changes": []any{map[string]any{
				"value": map[string]any{
					"messages": []any{map[string]any{
						"from": from, "id": "wamid.btn", "type": "interactive",
						"interactive": map[string]any{
							"type":         "button_reply",
							"button_reply": map[string]any{"id": "b1", "title": title},
						},
					}},
				},
			}},
		}},
	})
	return body
}

// --- Verification ---

func TestVerification_EchoesChallenge(t *testing.T) {
	tb := newTestBot(t, nil)
	rec := tb.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=latiendita123&hub.challenge=1158201444", nil, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "1158201444" {
		t.Errorf("expected challenge verbatim, got %q", rec.Body.String())
	}
}

func TestVerification_Mismatch(t *testing.T) {
	tb := newTestBot(t, nil)
	for _, target := range []string{
		"/webhook?hub.mode=subscribe&hub.verify_token=otro&hub.challenge=1",
		"/webhook?hub.mode=unsubscribe&hub.verify_token=latiendita123&hub.challenge=1",
		"/webhook?hub.verify_token=latiendita123&hub.challenge=1",
		"/webhook?hub.mode=subscribe&hub.challenge=1",
	} {
		if rec := tb.do(http.MethodGet, target, nil, nil); rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", target, rec.Code)
		}
	}
}

func TestVerification_BareGetIsLiveness(t *testing.T) {
	tb := newTestBot(t, nil)
	rec := tb.do(http.MethodGet, "/webhook", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "bot activo" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

// --- Incoming ---

func TestIncoming_GreetingSendsWelcome(t *testing.T) {
	tb := newTestBot(t, nil)
	rec := tb.do(http.MethodPost, "/webhook", textDelivery("56911112222", "Camila", "Hola!"), nil)

	if rec.Code != http.StatusOK || rec.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("expected 200 EVENT_RECEIVED, got %d %q", rec.Code, rec.Body.String())
	}
	if len(tb.sender.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(tb.sender.sent))
	}
	got := tb.sender.sent[0]
	if got.Type != "template" || got.Template != "respond_bienvenida" {
		t.Errorf("expected welcome template, got %+v", got)
	}
	if got.To != "56911112222" || got.NameParam != "Camila" {
		t.Errorf("unexpected recipient or name: %+v", got)
	}

	if len(tb.log.got) != 1 {
		t.Fatalf("expected one logged exchange, got %d", len(tb.log.got))
	}
	ex := tb.log.got[0]
	if ex.ConversationID != "wa:56911112222" || ex.State != domain.StateAwaitingMenu {
		t.Errorf("unexpected exchange %+v", ex)
	}
	if ex.Inbound.IntentID != domain.IntentGreeting || ex.Inbound.ID != "wamid.test" {
		t.Errorf("unexpected inbound turn %+v", ex.Inbound)
	}
	if ex.Outbound == nil || ex.Outbound.StatusCode != http.StatusOK {
		t.Errorf("expected outbound turn with status 200, got %+v", ex.Outbound)
	}
}

func TestIncoming_OrderWebSendsConfirmation(t *testing.T) {
	tb := newTestBot(t, nil)
	tb.do(http.MethodPost, "/webhook", textDelivery("569", "Camila", "Quiero confirmar mi pedido web"), nil)

	if len(tb.sender.sent) != 1 || tb.sender.sent[0].Type != "text" {
		t.Fatalf("expected one text send, got %+v", tb.sender.sent)
	}
	if !strings.Contains(tb.sender.sent[0].Body, "Recibimos tu pedido") {
		t.Errorf("unexpected body %q", tb.sender.sent[0].Body)
	}
}

func TestIncoming_FallbackSendsNothing(t *testing.T) {
	tb := newTestBot(t, nil)
	rec := tb.do(http.MethodPost, "/webhook", textDelivery("569", "Camila", "¿a qué hora abren?"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(tb.sender.sent) != 0 {
		t.Errorf("expected no sends, got %+v", tb.sender.sent)
	}
	if len(tb.log.got) != 1 || tb.log.got[0].Outbound != nil {
		t.Errorf("expected the inbound turn to be logged alone, got %+v", tb.log.got)
	}
}

func TestIncoming_HandoffButton(t *testing.T) {
	tb := newTestBot(t, nil)
	tb.do(http.MethodPost, "/webhook", buttonDelivery("569", "Hablar con un Humano"), nil)

	if len(tb.sender.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(tb.sender.sent))
	}
	got := tb.sender.sent[0]
	if got.Type != "text" {
		t.Errorf("hand-off must be plain text, got %s", got.Type)
	}
	if !strings.Contains(got.Body, "https://wa.me/56912345678") {
		t.Errorf("expected contact link, got %q", got.Body)
	}
	if len(tb.notifier.got) != 1 || tb.notifier.got[0].From != "569" {
		t.Errorf("expected staff alert, got %+v", tb.notifier.got)
	}
	if !tb.log.got[0].NeedsHuman {
		t.Error("exchange should be flagged for a human")
	}
}

func TestIncoming_MissingSenderNameUsesFallback(t *testing.T) {
	tb := newTestBot(t, nil)
	tb.do(http.MethodPost, "/webhook", buttonDelivery("569", "Volver"), nil)

	if len(tb.sender.sent) != 1 || tb.sender.sent[0].NameParam != "Amante del Pan" {
		t.Fatalf("expected welcome with fallback name, got %+v", tb.sender.sent)
	}
}

func TestIncoming_MalformedIs500(t *testing.T) {
	tb := newTestBot(t, nil)
	for _, body := range []string{
		`{not json`,
		`{}`,
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"type":"text"}]}}]}]}`,
	} {
		rec := tb.do(http.MethodPost, "/webhook", []byte(body), nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", body, rec.Code)
		}
	}
	if len(tb.sender.sent) != 0 || len(tb.log.got) != 0 {
		t.Error("malformed deliveries must not send or log")
	}
}

func TestIncoming_AcknowledgedWithoutMessages(t *testing.T) {
	tb := newTestBot(t, nil)
	for _, body := range []string{
		`{"object":"page","entry":[]}`,
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x","status":"delivered"}]}}]}]}`,
		`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"569","type":"sticker"}]}}]}]}`,
	} {
		rec := tb.do(http.MethodPost, "/webhook", []byte(body), nil)
		if rec.Code != http.StatusOK || rec.Body.String() != "EVENT_RECEIVED" {
			t.Errorf("%s: expected 200 EVENT_RECEIVED, got %d %q", body, rec.Code, rec.Body.String())
		}
	}
	if len(tb.sender.sent) != 0 {
		t.Errorf("expected no sends, got %+v", tb.sender.sent)
	}
}

func TestIncoming_SendAndLogFailuresStillAcknowledge(t *testing.T) {
	tb := newTestBot(t, nil)
	tb.sender.status = http.StatusBadRequest
	tb.sender.err = errors.New("whatsapp API 400: template not found")
	tb.log.err = errors.New("database is locked")

	rec := tb.do(http.MethodPost, "/webhook", textDelivery("569", "Camila", "hola"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if tb.log.got[0].Outbound.StatusCode != http.StatusBadRequest {
		t.Errorf("expected failed status to be logged, got %+v", tb.log.got[0].Outbound)
	}
}

func TestIncoming_Signature(t *testing.T) {
	tb := newTestBot(t, func(c *config.Config) { c.WhatsApp.AppSecret = "app-secret" })
	body := textDelivery("569", "Camila", "hola")

	rec := tb.do(http.MethodPost, "/webhook", body, http.Header{"X-Hub-Signature-256": {"sha256=deadbeef"}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad signature, got %d", rec.Code)
	}
	if len(tb.sender.sent) != 0 {
		t.Fatal("rejected delivery must not send")
	}

	sig := "sha256=" + cloudapi.Sign(body, "app-secret")
	rec = tb.do(http.MethodPost, "/webhook", body, http.Header{"X-Hub-Signature-256": {sig}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid signature, got %d", rec.Code)
	}
}

// --- Sandbox ---

func sandbox(t *testing.T, tb *testBot, body string) (*httptest.ResponseRecorder, SandboxResponse) {
	t.Helper()
	rec := tb.do(http.MethodPost, "/api/sandbox", []byte(body), nil)
	var resp SandboxResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rec, resp
}

func TestSandbox_Greeting(t *testing.T) {
	tb := newTestBot(t, nil)
	rec, resp := sandbox(t, tb, `{"text":"Buenos días","conversationId":"demo-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Intent.ID != "greeting" {
		t.Errorf("expected greeting, got %s", resp.Intent.ID)
	}
	if resp.Action.Type != "template" || resp.Action.Template != "respond_bienvenida" {
		t.Errorf("expected only the welcome template, got %+v", resp.Action)
	}
	if resp.NextState != domain.StateAwaitingMenu || resp.ConversationID != "demo-1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(tb.sender.sent) != 0 || len(tb.log.got) != 0 {
		t.Error("sandbox must not send or log")
	}
}

func TestSandbox_OrderWebAndFallback(t *testing.T) {
	tb := newTestBot(t, nil)

	_, resp := sandbox(t, tb, `{"text":"tengo un pedido web","conversationId":"c"}`)
	if resp.Intent.ID != "order_web" || !strings.Contains(resp.Reply, "Recibimos tu pedido") {
		t.Errorf("unexpected order response %+v", resp)
	}

	_, resp = sandbox(t, tb, `{"text":"¿tienen hallullas?","conversationId":"c"}`)
	if resp.Intent.ID != "fallback" || resp.Action.Type != "none" {
		t.Errorf("unexpected fallback response %+v", resp)
	}
}

func TestSandbox_Button(t *testing.T) {
	tb := newTestBot(t, nil)
	_, resp := sandbox(t, tb, `{"text":"Hablar con un Humano","conversationId":"c","kind":"button"}`)
	if resp.Intent.ID != "handoff_human" || !resp.NeedsHuman {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(tb.notifier.got) != 0 {
		t.Error("sandbox must not alert staff")
	}
}

func TestSandbox_BadRequests(t *testing.T) {
	tb := newTestBot(t, nil)
	for _, body := range []string{``, `nope`, `{"conversationId":"c"}`, `{"text":"hola","kind":"audio"}`} {
		rec, _ := sandbox(t, tb, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: expected 400, got %d", body, rec.Code)
		}
	}
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	tb := newTestBot(t, nil)
	rec := tb.do(http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	tb := newTestBot(t, nil)
	tb.do(http.MethodPost, "/webhook", textDelivery("569", "Camila", "hola"), nil)
	tb.do(http.MethodPost, "/webhook", []byte(`{bad`), nil)

	rec := tb.do(http.MethodGet, "/metrics", nil, nil)
	out := rec.Body.String()
	for _, want := range []string{
		`tienditabot_webhook_events_total{result="processed"} 1`,
		`tienditabot_webhook_events_total{result="malformed"} 1`,
		`tienditabot_intents_total{intent="greeting"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in metrics:\n%s", want, out)
		}
	}
}

func TestMedia(t *testing.T) {
	img := filepath.Join(t.TempDir(), "bienvenida.png")
	if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tb := newTestBot(t, func(c *config.Config) { c.Media.WelcomeImagePath = img })

	rec := tb.do(http.MethodGet, "/media/welcome", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("unexpected cache header %q", rec.Header().Get("Cache-Control"))
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}

	if rec := tb.do(http.MethodGet, "/media/otra", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown key, got %d", rec.Code)
	}
}

func TestMedia_NotConfigured(t *testing.T) {
	tb := newTestBot(t, nil)
	if rec := tb.do(http.MethodGet, "/media/welcome", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
