package webhook

import (
	"encoding/xml"
)

// twimlResponse renders as <Response><Message>..</Message></Response>, or
// <Response></Response> when there is nothing to say.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message *string  `xml:"Message,omitempty"`
}

func renderTwiML(text string, ok bool) ([]byte, error) {
	r := twimlResponse{}
	if ok {
		r.Message = &text
	}
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
