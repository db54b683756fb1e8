// Package intent maps inbound WhatsApp messages to the bot's reply.
package intent

import (
	"fmt"
	"strings"

	"tienditabot/internal/config"
	"tienditabot/internal/domain"
)

// Button title fragments, compared against the folded title.
const (
	buttonTalkToHuman = "hablar con un humano"
	buttonAttention   = "atencion"
	buttonHuman       = "humano"
	buttonOrder       = "pedido"
	buttonQuestion    = "pregunta"
	buttonBack        = "volver"
)

// Templates names the approved templates the classifier may pick.
type Templates struct {
	Welcome   string
	Order     string
	Question  string
	Attention string
}

// Config is everything the classifier needs; build it with FromConfig.
type Config struct {
	Templates           Templates
	GreetingKeywords    []string
	OrderConfirmPhrases []string
	OrderConfirmText    string
	HumanContactText    string // may contain {link}
	HumanContactLink    string
	FallbackName        string
}

// FromConfig extracts the classifier settings from the bot configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Templates: Templates{
			Welcome:   cfg.Templates.Welcome,
			Order:     cfg.Templates.Order,
			Question:  cfg.Templates.Question,
			Attention: cfg.Templates.Attention,
		},
		GreetingKeywords:    cfg.Bot.GreetingKeywords,
		OrderConfirmPhrases: cfg.Bot.OrderConfirmPhrases,
		OrderConfirmText:    cfg.Bot.OrderConfirmText,
		HumanContactText:    cfg.Bot.HumanContactText,
		HumanContactLink:    cfg.HumanContactLink(),
		FallbackName:        cfg.Bot.FallbackName,
	}
}

// Classifier applies the ordered keyword and button rules. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	cfg       Config
	greetings []string
	orderWeb  []string
	handoff   string
}

func NewClassifier(cfg Config) *Classifier {
	handoff := cfg.HumanContactText
	switch {
	case handoff == "":
		handoff = cfg.HumanContactLink
	case strings.Contains(handoff, "{link}"):
		handoff = strings.ReplaceAll(handoff, "{link}", cfg.HumanContactLink)
	default:
		handoff = handoff + " " + cfg.HumanContactLink
	}
	return &Classifier{
		cfg:       cfg,
		greetings: foldAll(cfg.GreetingKeywords),
		orderWeb:  foldAll(cfg.OrderConfirmPhrases),
		handoff:   handoff,
	}
}

// Classify decides the reply for ev. It never fails: anything unrecognised
// becomes a fallback decision with no outbound action.
func (c *Classifier) Classify(ev domain.InboundEvent) domain.Decision {
	folded := Fold(ev.Text)
	if ev.Kind.IsButton() {
		return c.classifyButton(folded, ev.SenderName)
	}
	return c.classifyText(folded, ev.SenderName)
}

func (c *Classifier) classifyText(folded, sender string) domain.Decision {
	if containsAny(folded, c.greetings) {
		return c.template(domain.IntentGreeting, c.cfg.Templates.Welcome, c.displayName(sender))
	}
	if containsAny(folded, c.orderWeb) {
		return c.text(domain.IntentOrderWeb, c.cfg.OrderConfirmText, domain.StateIdle, false)
	}
	return fallback()
}

func (c *Classifier) classifyButton(folded, sender string) domain.Decision {
	switch {
	case strings.Contains(folded, buttonTalkToHuman):
		return c.text(domain.IntentHandoffHuman, c.handoff, domain.StateHandoff, true)
	case strings.Contains(folded, buttonAttention), strings.Contains(folded, buttonHuman):
		return c.template(domain.IntentAttention, c.cfg.Templates.Attention, "")
	case strings.Contains(folded, buttonOrder):
		return c.template(domain.IntentOrderStart, c.cfg.Templates.Order, "")
	case strings.Contains(folded, buttonQuestion):
		return c.template(domain.IntentQuestion, c.cfg.Templates.Question, "")
	case strings.Contains(folded, buttonBack):
		return c.template(domain.IntentBack, c.cfg.Templates.Welcome, c.displayName(sender))
	}
	return fallback()
}

func (c *Classifier) displayName(sender string) string {
	if s := strings.TrimSpace(sender); s != "" {
		return s
	}
	return c.cfg.FallbackName
}

func (c *Classifier) template(intentID, name, nameParam string) domain.Decision {
	return domain.Decision{
		Intent: intentID,
		Action: domain.OutboundAction{
			Type:      domain.ActionTemplate,
			Template:  name,
			NameParam: nameParam,
		},
		Reply:     TemplatePreview(name),
		NextState: domain.StateAwaitingMenu,
	}
}

func (c *Classifier) text(intentID, body, state string, needsHuman bool) domain.Decision {
	return domain.Decision{
		Intent:     intentID,
		Action:     domain.OutboundAction{Type: domain.ActionText, Body: body},
		Reply:      body,
		NextState:  state,
		NeedsHuman: needsHuman,
	}
}

func fallback() domain.Decision {
	return domain.Decision{
		Intent:    domain.IntentFallback,
		Action:    domain.OutboundAction{Type: domain.ActionNone},
		NextState: domain.StateIdle,
	}
}

// TemplatePreview is the text stored and shown in place of a template's content.
func TemplatePreview(name string) string {
	return fmt.Sprintf("[plantilla %s]", name)
}
