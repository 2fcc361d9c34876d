// internal/service/template_service.go
package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/bulk-dispatcher/internal/errors"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// NewNamespace returns a fresh per-process run token.
func NewNamespace() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "*")
}

// ValidateMapping rejects empty mappings, blank names and repeated columns.
func ValidateMapping(mapping model.ColumnMapping) error {
	if len(mapping) == 0 {
		return fmt.Errorf("%w: no columns mapped", appErrors.ErrInvalidMapping)
	}
	seen := make(map[string]bool, len(mapping))
	for _, p := range mapping {
		if strings.TrimSpace(p.Column) == "" || strings.TrimSpace(p.Variable) == "" {
			return fmt.Errorf("%w: blank column or variable", appErrors.ErrInvalidMapping)
		}
		if seen[p.Column] {
			return fmt.Errorf("%w: column %q mapped twice", appErrors.ErrInvalidMapping, p.Column)
		}
		seen[p.Column] = true
	}
	return nil
}

// BuildPayload renders one recipient into the remote message body.
// Parameters follow mapping order; missing columns become empty text.
func BuildPayload(rec model.Recipient, mapping model.ColumnMapping, template, namespace, language string) model.Payload {
	params := make([]model.Parameter, 0, len(mapping))
	for _, p := range mapping {
		params = append(params, model.Parameter{
			Type:          model.ParameterText,
			ParameterName: p.Variable,
			Text:          strings.TrimSpace(rec.Get(p.Column)),
		})
	}

	return model.Payload{
		MessagingProduct: model.MessagingProduct,
		Type:             model.MessageType,
		To:               rec.Phone(),
		Template: model.TemplateMessage{
			Namespace: namespace,
			Name:      template,
			Language:  model.Language{Code: language},
			Components: []model.Component{
				{Type: model.ComponentBody, Parameters: params},
			},
		},
	}
}

// AssignTemplates rotates templates over recipients by position. With no
// templates the recipients are returned unchanged and must carry their own.
func AssignTemplates(recipients []model.Recipient, templates []string) []model.Recipient {
	if len(templates) == 0 {
		return recipients
	}
	out := make([]model.Recipient, len(recipients))
	for i, r := range recipients {
		out[i] = r.With(model.TemplateColumn, templates[i%len(templates)])
	}
	return out
}
