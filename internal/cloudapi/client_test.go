package cloudapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type capturedRequest struct {
	Path   string
	Auth   string
	Body   sendRequest
}

func newTestAPI(t *testing.T, status int, reply string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body sendRequest
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("server got invalid json: %v", err)
		}
		captured = append(captured, capturedRequest{
			Path: r.URL.Path,
			Auth: r.Header.Get("Authorization"),
			Body: body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClient(apiBase string) *Client {
	return NewClient(ClientConfig{
		APIBase:            apiBase,
		APIVersion:         "v21.0",
		PhoneNumberID:      "1098765",
		AccessToken:        "EAAG-token",
		WelcomeTemplate:    "respond_bienvenida",
		WelcomeHeaderImage: "https://latiendita.cl/media/welcome",
		Logger:             testLogger(),
	})
}

const okReply = `{"messaging_product":"whatsapp","contacts":[{"input":"569","wa_id":"569"}],"messages":[{"id":"wamid.x"}]}`

func TestSendTemplate_Welcome(t *testing.T) {
	srv, captured := newTestAPI(t, http.StatusOK, okReply)
	c := newTestClient(srv.URL)

	status, err := c.SendTemplate(context.Background(), "56911112222", "respond_bienvenida", "Camila")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*captured))
	}
	got := (*captured)[0]
	if got.Path != "/v21.0/1098765/messages" {
		t.Errorf("unexpected path %s", got.Path)
	}
	if got.Auth != "Bearer EAAG-token" {
		t.Errorf("unexpected auth header %q", got.Auth)
	}
	if got.Body.Type != "template" || got.Body.Template == nil {
		t.Fatalf("expected template body, got %+v", got.Body)
	}
	tpl := got.Body.Template
	if tpl.Name != "respond_bienvenida" {
		t.Errorf("unexpected template %s", tpl.Name)
	}
	if tpl.Language.Code != "es_CL" {
		t.Errorf("expected es_CL, got %s", tpl.Language.Code)
	}
	if len(tpl.Components) != 2 {
		t.Fatalf("expected header and body components, got %d", len(tpl.Components))
	}
	header := tpl.Components[0]
	if header.Type != "header" || header.Parameters[0].Image == nil ||
		header.Parameters[0].Image.Link != "https://latiendita.cl/media/welcome" {
		t.Errorf("unexpected header component %+v", header)
	}
	body := tpl.Components[1]
	if body.Type != "body" || body.Parameters[0].Text != "Camila" {
		t.Errorf("unexpected body component %+v", body)
	}
}

func TestSendTemplate_OtherTemplateHasNoComponents(t *testing.T) {
	srv, captured := newTestAPI(t, http.StatusOK, okReply)
	c := newTestClient(srv.URL)

	if _, err := c.SendTemplate(context.Background(), "569", "respond_pedido", "Camila"); err != nil {
		t.Fatalf("send: %v", err)
	}
	tpl := (*captured)[0].Body.Template
	if tpl.Name != "respond_pedido" {
		t.Errorf("unexpected template %s", tpl.Name)
	}
	if len(tpl.Components) != 0 {
		t.Errorf("expected no components, got %+v", tpl.Components)
	}
}

func TestSendText(t *testing.T) {
	srv, captured := newTestAPI(t, http.StatusOK, okReply)
	c := newTestClient(srv.URL)

	msg := "Para hablar con nosotros: https://wa.me/56912345678"
	if _, err := c.SendText(context.Background(), "569", msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := (*captured)[0].Body
	if got.Type != "text" || got.Text == nil {
		t.Fatalf("expected text body, got %+v", got)
	}
	if got.Text.Body != msg {
		t.Errorf("unexpected body %q", got.Text.Body)
	}
	if !got.Text.PreviewURL {
		t.Error("expected link preview for body with a link")
	}
	if got.Template != nil {
		t.Error("text message should not carry a template")
	}
}

func TestSend_APIError(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusBadRequest,
		`{"error":{"message":"Template name does not exist in the translation","type":"OAuthException","code":132001}}`)
	c := newTestClient(srv.URL)

	status, err := c.SendTemplate(context.Background(), "569", "no_existe", "")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", status)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != 132001 {
		t.Errorf("expected code 132001, got %d", apiErr.Code)
	}
}

func TestSend_NonJSONError(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusBadGateway, "upstream down")
	c := newTestClient(srv.URL)

	_, err := c.SendText(context.Background(), "569", "hola")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "upstream down" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	status, err := newTestClient(url).SendText(context.Background(), "569", "hola")
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	if status != 0 {
		t.Errorf("expected status 0, got %d", status)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{PhoneNumberID: "42"})
	if c.MessagesURL() != "https://graph.facebook.com/v21.0/42/messages" {
		t.Errorf("unexpected url %s", c.MessagesURL())
	}
	if c.cfg.LanguageCode != "es_CL" {
		t.Errorf("expected default language es_CL, got %s", c.cfg.LanguageCode)
	}
}
