// internal/model/profile.go
package model

// Profile is a named bundle of endpoint, credential and template rotation.
type Profile struct {
	Name          string   `json:"-" yaml:"-"`
	PhoneNumberID string   `json:"phone_number_id" yaml:"phone_number_id"`
	Token         string   `json:"token" yaml:"token"`
	Templates     []string `json:"templates" yaml:"templates"`
}
