package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"tienditabot/internal/cloudapi"
	"tienditabot/internal/metrics"
)

const (
	maxBodyBytes  = 1 << 20 // 1MB
	eventReceived = "EVENT_RECEIVED"
	livenessReply = "bot activo"
)

type WhatsAppConfig struct {
	VerifyToken string
	AppSecret   string // empty disables signature checks
	Dispatcher  *Dispatcher
	Metrics     *metrics.Bot
	Logger      *slog.Logger
}

// WhatsApp serves the Cloud API webhook: subscription verification on GET,
// message deliveries on POST.
type WhatsApp struct {
	verifyToken string
	appSecret   string
	dispatcher  *Dispatcher
	metrics     *metrics.Bot
	logger      *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhatsApp{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		dispatcher:  cfg.Dispatcher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Register mounts the webhook handlers on mux at path.
func (w *WhatsApp) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc("GET "+path, w.handleVerification)
	mux.HandleFunc("POST "+path, w.handleIncoming)
}

// handleVerification answers the subscription challenge. A bare GET with
// neither mode nor token is treated as a liveness probe.
func (w *WhatsApp) handleVerification(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if !q.Has("hub.mode") && !q.Has("hub.verify_token") {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(rw, livenessReply)
		return
	}

	if mode == "subscribe" && token != "" && token == w.verifyToken {
		w.logger.Info("whatsapp webhook verified")
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusOK)
		io.WriteString(rw, challenge)
		return
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

// handleIncoming acknowledges every delivery it can parse, even when the
// reply or the conversation log fails afterwards.
func (w *WhatsApp) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		w.metrics.WebhookEvent(metrics.ResultMalformed)
		http.Error(rw, "Error", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	if w.appSecret != "" && !cloudapi.VerifySignature(body, w.appSecret, r.Header.Get(cloudapi.SignatureHeader)) {
		w.logger.Warn("whatsapp invalid signature")
		w.metrics.WebhookEvent(metrics.ResultForbidden)
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	ev, err := cloudapi.ParseEvent(body)
	switch {
	case err == nil:
		// The provider may drop the connection once it times out; the reply still goes out.
		w.dispatcher.Handle(context.WithoutCancel(r.Context()), ev)
		w.metrics.WebhookEvent(metrics.ResultProcessed)
	case errors.Is(err, cloudapi.ErrIgnored):
		w.logger.Debug("whatsapp delivery ignored", "reason", err)
		w.metrics.WebhookEvent(metrics.ResultIgnored)
	case errors.Is(err, cloudapi.ErrNoMessage):
		w.logger.Debug("whatsapp status update ignored")
		w.metrics.WebhookEvent(metrics.ResultNoMessage)
	case errors.Is(err, cloudapi.ErrUnsupportedKind):
		w.logger.Info("whatsapp message type not handled", "from", ev.From, "reason", err)
		w.metrics.WebhookEvent(metrics.ResultUnsupported)
	default:
		w.logger.Error("whatsapp payload rejected", "err", err)
		w.metrics.WebhookEvent(metrics.ResultMalformed)
		http.Error(rw, "Error", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, eventReceived)
}
