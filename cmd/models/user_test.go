package models

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

// Struct conditions like Where(&User{Refresh: token}) resolve columns
// through the schema, so the tag mappings here are load-bearing for
// the refresh-token lookup.
func TestUserColumnMapping(t *testing.T) {
	s, err := schema.Parse(&User{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parsing User schema: %v", err)
	}

	tests := []struct {
		field  string
		column string
	}{
		{"Refresh", "refresh_token"},
		{"RefreshTokenExpiredAt", "refresh_token_expired_at"},
		{"PasswordHash", "password_hash"},
		{"Tier", "subscription_tier"},
		{"LastActive", "last_active"},
	}

	for _, tt := range tests {
		f, ok := s.FieldsByName[tt.field]
		if !ok {
			t.Fatalf("User has no field %q", tt.field)
		}
		if f.DBName != tt.column {
			t.Errorf("User.%s maps to column %q, want %q", tt.field, f.DBName, tt.column)
		}
	}
}
