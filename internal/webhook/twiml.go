package webhook

import "encoding/xml"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// RenderTwiML wraps reply text in the carrier's messaging markup,
// escaping it so the body is always well-formed XML.
func RenderTwiML(text string) string {
	payload, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		payload = []byte("<Response><Message></Message></Response>")
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` + string(payload)
}
