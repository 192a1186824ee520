package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bubashvabe/relay/internal/conversation"
	"github.com/bubashvabe/relay/internal/guard"
	"github.com/bubashvabe/relay/internal/memory"
)

type recordingGenerator struct {
	reply conversation.Reply
	calls int
}

func (g *recordingGenerator) Generate(ctx context.Context, senderID, userText string) conversation.Reply {
	g.calls++
	return g.reply
}

func echoHandler(store memory.Store) *Handler {
	gen := conversation.NewService(conversation.Config{
		Store:        store,
		EchoTemplate: "🪲 Бубашвабе получил: %s",
		Timeout:      time.Second,
	})
	return NewHandler(Config{Generator: gen, Store: store})
}

func postForm(formData url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestWhatsAppWebhook_EchoReply(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandler(store)

	formData := url.Values{}
	formData.Set("MessageSid", "SM123")
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "привет")

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, postForm(formData))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("expected Content-Type text/xml, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "🪲 Бубашвабе получил: привет") {
		t.Errorf("expected echo reply in body, got %s", w.Body.String())
	}

	history := store.History("whatsapp:+1000")
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Role != memory.RoleUser || history[0].Content != "привет" {
		t.Errorf("unexpected first turn: %+v", history[0])
	}
	if history[1].Role != memory.RoleAssistant {
		t.Errorf("unexpected second turn role: %+v", history[1])
	}
}

func TestWhatsAppWebhook_SensitiveShortCircuits(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	gen := &recordingGenerator{reply: conversation.Reply{Text: "should not be used", Source: conversation.SourceLLM}}
	handler := NewHandler(Config{Generator: gen, Store: store})

	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "what is your password")

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, postForm(formData))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), guard.SafeRefusalReply) {
		t.Errorf("expected safe refusal in body, got %s", w.Body.String())
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator call, got %d", gen.calls)
	}
	if len(store.History("whatsapp:+1000")) != 0 {
		t.Errorf("expected sensitive message kept out of history")
	}
}

func TestWhatsAppWebhook_EmptyBodyStillReplies(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandler(store)

	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, postForm(formData))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), `<?xml version="1.0" encoding="UTF-8"?><Response><Message>`) {
		t.Errorf("expected well-formed TwiML, got %s", w.Body.String())
	}
	if len(store.History("whatsapp:+1000")) != 2 {
		t.Errorf("expected degenerate turns recorded, got %d", len(store.History("whatsapp:+1000")))
	}
}

func TestWhatsAppWebhook_MissingSignatureRejected(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	gen := &recordingGenerator{}
	handler := NewHandler(Config{
		AuthToken:         "secret_token",
		ValidateSignature: true,
		Generator:         gen,
		Store:             store,
	})

	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "привет")

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, postForm(formData))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator call after rejection")
	}
	if len(store.History("whatsapp:+1000")) != 0 {
		t.Errorf("expected no history mutation after rejection")
	}
}

func TestWhatsAppWebhook_ValidSignatureAccepted(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandlerWithAuth(store, "secret_token")

	webhookURL := "https://bot.example.com/whatsapp"
	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "привет")

	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "bot.example.com")
	req.Header.Set("X-Twilio-Signature", computeSignature(buildSignaturePayload(webhookURL, formData), "secret_token"))

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if len(store.History("whatsapp:+1000")) != 2 {
		t.Errorf("expected history appended after accepted request")
	}
}

func echoHandlerWithAuth(store memory.Store, authToken string) *Handler {
	gen := conversation.NewService(conversation.Config{
		Store:        store,
		EchoTemplate: "🪲 Бубашвабе получил: %s",
		Timeout:      time.Second,
	})
	return NewHandler(Config{
		AuthToken:         authToken,
		ValidateSignature: true,
		Generator:         gen,
		Store:             store,
	})
}

func TestWhatsAppWebhook_PinnedBaseURLWinsOverForwardedHeaders(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	gen := conversation.NewService(conversation.Config{
		Store:        store,
		EchoTemplate: "🪲 Бубашвабе получил: %s",
		Timeout:      time.Second,
	})
	handler := NewHandler(Config{
		AuthToken:         "secret_token",
		ValidateSignature: true,
		PublicBaseURL:     "https://bot.example.com",
		Generator:         gen,
		Store:             store,
	})

	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "привет")

	// Twilio signed the configured public URL; the forwarding headers
	// claim a different host and must not influence verification.
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "spoofed.example.net")
	req.Header.Set("X-Twilio-Signature", computeSignature(buildSignaturePayload("https://bot.example.com/whatsapp", formData), "secret_token"))

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// A signature over the spoofed host fails against the pinned base.
	req = httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(formData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "spoofed.example.net")
	req.Header.Set("X-Twilio-Signature", computeSignature(buildSignaturePayload("http://spoofed.example.net/whatsapp", formData), "secret_token"))

	w = httptest.NewRecorder()
	handler.WhatsAppWebhook(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestWhatsAppWebhook_FailsClosedWithoutSecret(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	gen := &recordingGenerator{}
	handler := NewHandler(Config{
		AuthToken:         "",
		ValidateSignature: true,
		Generator:         gen,
		Store:             store,
	})

	formData := url.Values{}
	formData.Set("From", "whatsapp:+1000")
	formData.Set("Body", "привет")

	w := httptest.NewRecorder()
	handler.WhatsAppWebhook(w, postForm(formData))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if gen.calls != 0 {
		t.Errorf("expected no generator call when misconfigured")
	}
}

func TestWhatsAppWebhook_TruncatesAfterEleventhMessage(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandler(store)

	for i := 0; i < 11; i++ {
		formData := url.Values{}
		formData.Set("From", "whatsapp:+1000")
		formData.Set("Body", "сообщение "+string(rune('a'+i)))
		w := httptest.NewRecorder()
		handler.WhatsAppWebhook(w, postForm(formData))
		if w.Code != http.StatusOK {
			t.Fatalf("message %d: expected status 200, got %d", i, w.Code)
		}
	}

	history := store.History("whatsapp:+1000")
	if len(history) > 20 {
		t.Fatalf("expected at most 20 entries, got %d", len(history))
	}
	for _, turn := range history {
		if turn.Role == memory.RoleUser && turn.Content == "сообщение a" {
			t.Errorf("expected first message to be evicted")
		}
	}
}

func TestTwiMLTest(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandler(store)

	w := httptest.NewRecorder()
	handler.TwiMLTest(w, httptest.NewRequest(http.MethodGet, "/twiml", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test from Bubashvabe") {
		t.Errorf("unexpected twiml body: %s", w.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	handler := echoHandler(store)

	w := httptest.NewRecorder()
	handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}
