package models

import "strings"

// Profile is the normalized user record returned by every identity provider.
// ValidatedID is always set; every other field is best-effort.
type Profile struct {
	ValidatedID string `json:"validated_id" yaml:"validated_id"`         // Provider user id
	ProviderID  string `json:"provider_id" yaml:"provider_id"`           // e.g. "facebook"
	FirstName   string `json:"first_name,omitempty" yaml:"first_name"`   // Given name
	LastName    string `json:"last_name,omitempty" yaml:"last_name"`     // Family name
	FullName    string `json:"full_name,omitempty" yaml:"full_name"`     // Display name, when offered
	Email       string `json:"email,omitempty" yaml:"email"`             // Primary email
	Location    string `json:"location,omitempty" yaml:"location"`       // Free-form location name
	DOB         string `json:"dob,omitempty" yaml:"dob"`                 // Birth date as sent by the provider
	Gender      string `json:"gender,omitempty" yaml:"gender"`           // As sent by the provider
	Language    string `json:"language,omitempty" yaml:"language"`       // From locale, e.g. "en"
	Country     string `json:"country,omitempty" yaml:"country"`         // From locale, e.g. "US"
}

// SetLocale splits a combined locale such as "en_US" or "en-US" into language
// and country. A locale without a separator only sets the language.
func (p *Profile) SetLocale(locale string) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return
	}

	parts := strings.FieldsFunc(locale, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return
	}
	p.Language = parts[0]
	if len(parts) > 1 {
		p.Country = parts[1]
	}
}
