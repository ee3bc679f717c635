package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wolfman30/whatsapp-ai-relay/cmd/mainconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/app/bootstrap"
	"github.com/wolfman30/whatsapp-ai-relay/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/whatsapp-ai-relay/internal/config"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

type turn struct {
	senderID string
	name     string
	text     string
}

// script interleaves two senders so each one's follow-up must reuse its own
// context.
var script = []turn{
	{"123", "John", "Hi, what can you help me with?"},
	{"456", "Sarah", "Hello! Do you have any vegetarian options?"},
	{"123", "John", "Great. Can you remind me what I asked first?"},
	{"456", "Sarah", "Which of those would you recommend for dinner?"},
}

func main() {
	cfg := appconfig.Load()
	cfg.SessionStore = "memory"
	if cfg.ConversationBackend == appconfig.BackendChat {
		cfg.ChatHistoryStore = "memory"
	}

	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Warn("configuration incomplete for webhook serving; continuing with quickstart", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	relay, err := bootstrap.BuildRelay(ctx, cfg, mainconfig.AWSLoader(cfg), nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quickstart: %v\n", err)
		os.Exit(1)
	}
	defer relay.Close()

	fmt.Printf("Conversation backend: %s\n", cfg.ConversationBackend)
	for i, t := range script {
		start := time.Now()
		reply := whatsapp.FormatText(relay.Orchestrator.GenerateReply(ctx, t.senderID, t.name, t.text))
		fmt.Printf("\n[%d] %s (%s): %s\n", i+1, t.name, t.senderID, t.text)
		fmt.Printf("    reply (%v): %s\n", time.Since(start).Round(time.Millisecond), reply)
	}
}
