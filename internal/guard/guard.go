package guard

import (
	"regexp"
	"strings"
)

// SafeRefusalReply is returned verbatim when a message trips the filter.
// The message is never forwarded to the LLM and is not recorded in history.
const SafeRefusalReply = "Я не могу помогать с паролями, кодами подтверждения и платёжными данными. Пожалуйста, никогда не отправляйте их в чат."

// sensitivePatterns covers credential, one-time-code, card/CVV/PIN and
// two-factor vocabulary in Russian and English. This is a heuristic safety
// gate against the bot being used to coach credential/OTP phishing, not a
// security boundary: false negatives are expected.
var sensitivePatterns = []*regexp.Regexp{
	// passwords / credentials
	// NOTE: \b and \w in Go regexps are ASCII-only, so the Russian
	// patterns rely on stems and explicit whitespace instead.
	regexp.MustCompile(`(?i)\bpassword\b|\bpasswd\b|\bpassphrase\b`),
	regexp.MustCompile(`(?i)парол`),
	// one-time codes and confirmation codes
	regexp.MustCompile(`(?i)\botp\b|one[- ]?time\s+(code|password)`),
	regexp.MustCompile(`(?i)(verification|confirmation|sms)\s+code`),
	regexp.MustCompile(`(?i)код\s+(из\s+смс|подтверждени|верификаци|активаци)`),
	regexp.MustCompile(`(?i)одноразов\S*\s+(код|парол)`),
	// cards, CVV, PIN
	regexp.MustCompile(`(?i)\bcvv\b|\bcvc\b|card\s+(number|pin)`),
	regexp.MustCompile(`(?i)\bpin[- ]?code\b|\bpin\b`),
	regexp.MustCompile(`(?i)номер\s+карты|пин[- ]?код|cvv[- ]?код`),
	// two-factor authentication
	regexp.MustCompile(`(?i)\b2fa\b|two[- ]?factor|двухфакторн`),
}

// IsSensitive reports whether text matches the credential/OTP vocabulary.
// Pure and deterministic: the result depends only on the input text.
func IsSensitive(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, re := range sensitivePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
