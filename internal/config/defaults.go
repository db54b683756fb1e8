package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			SandboxPath: "/api/sandbox",
		},
		Log: LogConfig{
			Level: "info",
		},
		WhatsApp: WhatsAppConfig{
			APIBase:        "https://graph.facebook.com",
			APIVersion:     "v21.0",
			LanguageCode:   "es_CL",
			WebhookPath:    "/webhook",
			TimeoutSeconds: 30,
		},
		Templates: TemplatesConfig{
			Welcome:   "respond_bienvenida",
			Order:     "respond_pedido",
			Question:  "respond_question",
			Attention: "responde_atencion_clie",
		},
		Bot: BotConfig{
			GreetingKeywords:    defaultGreetingKeywords(),
			OrderConfirmPhrases: []string{"pedido web", "quiero confirmar"},
			OrderConfirmText:    "✅ ¡Recibimos tu pedido web! En breve te confirmamos los detalles y el horario de retiro.",
			HumanContactText:    "🤝 Para hablar directamente con nosotros, haz clic aquí: {link}",
			FallbackName:        "Amante del Pan",
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "data/conversations.db",
		},
		Events: EventsConfig{
			Exchange:   "tienditabot.events",
			RoutingKey: "conversation.turn",
			Producer:   "tienditabot",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

func defaultGreetingKeywords() []string {
	return []string{"hola", "buen", "inicio", "menu", "menú", "volver"}
}
