// internal/model/recipient.go
package model

import "strings"

const (
	PhoneColumn    = "telefone"
	TemplateColumn = "template_name"
)

// Recipient is one input row keyed by column name. Treat it as immutable:
// use With to derive a modified copy.
type Recipient map[string]string

func (r Recipient) Get(column string) string {
	return r[column]
}

func (r Recipient) Phone() string {
	return strings.TrimSpace(r[PhoneColumn])
}

func (r Recipient) Template() string {
	return strings.TrimSpace(r[TemplateColumn])
}

// With returns a copy of r with column set to value.
func (r Recipient) With(column, value string) Recipient {
	cp := make(Recipient, len(r)+1)
	for k, v := range r {
		cp[k] = v
	}
	cp[column] = value
	return cp
}

// ColumnPair binds an input column to a template parameter name.
type ColumnPair struct {
	Column   string `json:"column"`
	Variable string `json:"variable"`
}

// ColumnMapping is ordered; position defines parameter order in the payload.
type ColumnMapping []ColumnPair
