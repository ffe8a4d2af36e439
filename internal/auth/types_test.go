package auth

import (
	"strings"
	"testing"
)

func TestIsValidUsername(t *testing.T) {
	valid := []string{"a", "nurse.jane", "ward-3_staff", "ABC123", strings.Repeat("x", 64)}
	for _, u := range valid {
		if !IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = false, want true", u)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "tab\tchar", strings.Repeat("x", 65), "émile"}
	for _, u := range invalid {
		if IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = true, want false", u)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"nurse@stmarys.org", "a.b+c@icu.stmarys.org"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false, want true", e)
		}
	}

	invalid := []string{"", "plainaddress", "@stmarys.org", "two@@stmarys.org", "no-tld@host", "spaces in@addr.org"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Str0ng-password", false},
		{"Ab1defgh", false},
		{"Ab1defg", true},        // too short
		{"alllowercase1", true},  // no uppercase
		{"ALLUPPERCASE1", true},  // no lowercase
		{"NoDigitsHere", true},   // no digit
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password, 8)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestAllowedEmail_Matches(t *testing.T) {
	tests := []struct {
		entry string
		email string
		want  bool
	}{
		{"nurse@stmarys.org", "nurse@stmarys.org", true},
		{"nurse@stmarys.org", "NURSE@STMARYS.ORG", true},
		{"nurse@stmarys.org", "other@stmarys.org", false},
		{"@stmarys.org", "anyone@stmarys.org", true},
		{"@stmarys.org", "doc@icu.stmarys.org", true},
		{"@stmarys.org", "evil@notstmarys.org", false},
		{"@stmarys.org", "no-at-sign", false},
		{"@STMARYS.ORG", "anyone@stmarys.org", true},
	}

	for _, tt := range tests {
		a := AllowedEmail{Email: tt.entry}
		if got := a.Matches(tt.email); got != tt.want {
			t.Errorf("entry %q Matches(%q) = %v, want %v", tt.entry, tt.email, got, tt.want)
		}
	}
}
