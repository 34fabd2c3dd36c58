package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	identity := PasswordIdentity{Email: "ana.pop@example.com", FirstName: "Ana", LastName: "Popescu"}

	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "Str0ng!Passw0rd", ""},
		{"valid three classes no symbol", "Abcdefgh1234", ""},
		{"too short", "Ab1!short", "at least 12"},
		{"surrounding space", " Str0ng!Passw0rd", "spaces"},
		{"two classes only", "abcdefghijkl", "3 of"},
		{"contains email local part", "xxAna.Pop!234xx", "email"},
		{"contains last name", "PopescuStr0ng!", "last name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, identity)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidatePasswordTooLong(t *testing.T) {
	long := make([]byte, 129)
	for i := range long {
		long[i] = 'A'
	}
	err := ValidatePassword(string(long), PasswordIdentity{})
	require.Error(t, err)
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "a@b.com", NormalizeEmail("  A@B.COM "))
	require.Equal(t, "", NormalizeEmail("   "))
}
