// internal/model/payload.go
package model

const (
	MessagingProduct = "whatsapp"
	MessageType      = "template"
	ComponentBody    = "body"
	ParameterText    = "text"
)

// Payload is the JSON body of one remote send call. Field names are fixed by
// the remote API.
type Payload struct {
	MessagingProduct string          `json:"messaging_product"`
	Type             string          `json:"type"`
	To               string          `json:"to"`
	Template         TemplateMessage `json:"template"`
}

type TemplateMessage struct {
	Namespace  string      `json:"namespace"`
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components"`
}

type Language struct {
	Code string `json:"code"`
}

type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters"`
}

type Parameter struct {
	Type          string `json:"type"`
	ParameterName string `json:"parameter_name"`
	Text          string `json:"text"`
}
