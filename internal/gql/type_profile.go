package gql

import (
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/savaki/socialauth/internal/models"
)

// ProfileResolver resolves the Profile GraphQL type
type ProfileResolver struct {
	profile models.Profile
}

func newProfileResolver(profile models.Profile) *ProfileResolver {
	return &ProfileResolver{profile: profile}
}

func (r *ProfileResolver) ValidatedID() graphql.ID { return graphql.ID(r.profile.ValidatedID) }
func (r *ProfileResolver) ProviderID() string      { return r.profile.ProviderID }
func (r *ProfileResolver) FirstName() string       { return r.profile.FirstName }
func (r *ProfileResolver) LastName() string        { return r.profile.LastName }
func (r *ProfileResolver) FullName() *string       { return optional(r.profile.FullName) }
func (r *ProfileResolver) Email() string           { return r.profile.Email }
func (r *ProfileResolver) Location() *string       { return optional(r.profile.Location) }
func (r *ProfileResolver) Dob() *string            { return optional(r.profile.DOB) }
func (r *ProfileResolver) Gender() *string         { return optional(r.profile.Gender) }
func (r *ProfileResolver) Language() *string       { return optional(r.profile.Language) }
func (r *ProfileResolver) Country() *string        { return optional(r.profile.Country) }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
