package gql

import (
	"fmt"
	"time"
)

// DateTime is the DateTime scalar, serialized as RFC3339 in UTC
type DateTime struct {
	time.Time
}

// ImplementsGraphQLType returns the GraphQL type name
func (DateTime) ImplementsGraphQLType(name string) bool {
	return name == "DateTime"
}

// UnmarshalGraphQL accepts RFC3339 strings
func (t *DateTime) UnmarshalGraphQL(input interface{}) error {
	switch input := input.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, input)
		if err != nil {
			return fmt.Errorf("failed to parse DateTime: %w", err)
		}
		t.Time = parsed
		return nil
	case time.Time:
		t.Time = input
		return nil
	default:
		return fmt.Errorf("invalid DateTime type: %T", input)
	}
}

func (t DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

func NewDateTimePtr(t *time.Time) *DateTime {
	if t == nil {
		return nil
	}
	dt := DateTime{Time: *t}
	return &dt
}
