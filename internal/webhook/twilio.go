package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio.
// The scheme is HMAC-SHA1 over the externally-visible URL concatenated
// with the sorted key+value form parameters, base64-encoded and compared
// in constant time against the X-Twilio-Signature header.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || authToken == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expected := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload creates the payload string for signature verification
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)

	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundMessage carries the fields of a Twilio messaging webhook that
// the pipeline consumes. Twilio posts more (AccountSid, To, NumMedia);
// those stay in the form and are ignored.
type InboundMessage struct {
	MessageSid string
	From       string
	Body       string
}

// ParseInboundMessage extracts the message fields from the form payload.
// A malformed body is treated as an empty message rather than an error:
// the pipeline still produces a well-formed degenerate reply.
func ParseInboundMessage(r *http.Request) InboundMessage {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}
	}

	return InboundMessage{
		MessageSid: r.FormValue("MessageSid"),
		From:       r.FormValue("From"),
		Body:       r.FormValue("Body"),
	}
}

// BuildAbsoluteURL reconstructs the URL Twilio signed. The service sits
// behind a TLS-terminating proxy, so X-Forwarded-Proto/Host win over the
// connection's own scheme and host when present.
func BuildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
