package validator

import (
	"errors"
	"strings"
	"testing"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3"`
	Role     string `json:"role" validate:"omitempty,oneof=admin advisor"`
	Internal string `json:"-"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(signup{Email: "ana@example.edu", Username: "ana"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name  string
		input signup
		want  []string
	}{
		{name: "missing fields", input: signup{}, want: []string{"email is required", "username is required"}},
		{name: "bad email", input: signup{Email: "nope", Username: "ana"}, want: []string{"email must be a valid email address"}},
		{name: "short username", input: signup{Email: "a@b.co", Username: "a"}, want: []string{"username must be at least 3 characters"}},
		{name: "unknown role", input: signup{Email: "a@b.co", Username: "ana", Role: "root"}, want: []string{"role must be one of: admin, advisor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}
