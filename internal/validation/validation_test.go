package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestLinkValidation(t *testing.T) {
	tests := []struct {
		name       string
		link       LinkValidation
		wantFields []string
	}{
		{"valid", LinkValidation{URL: "https://example.com/a?b=c"}, nil},
		{"valid with domain", LinkValidation{URL: "http://example.com", Domain: "sho.rt"}, nil},
		{"missing url", LinkValidation{}, []string{"url"}},
		{"relative url", LinkValidation{URL: "/just/a/path"}, []string{"url"}},
		{"ftp url", LinkValidation{URL: "ftp://example.com/file"}, []string{"url"}},
		{"javascript url", LinkValidation{URL: "javascript:alert(1)"}, []string{"url"}},
		{"too long", LinkValidation{URL: "https://example.com/" + strings.Repeat("a", 2048)}, []string{"url"}},
		{"bad domain", LinkValidation{URL: "https://example.com", Domain: "sho.rt/path"}, []string{"domain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.link.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verrs Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if len(verrs) != len(tt.wantFields) {
				t.Fatalf("expected %d errors, got %v", len(tt.wantFields), verrs)
			}
			for i, field := range tt.wantFields {
				if verrs[i].Field != field {
					t.Errorf("error %d: expected field %q, got %q", i, field, verrs[i].Field)
				}
			}
		})
	}
}

func TestLinkUpdateValidation(t *testing.T) {
	if err := (&LinkUpdateValidation{ID: "42", Original: "https://example.com", Shortened: "my-link_1"}).Validate(); err != nil {
		t.Fatalf("expected valid update, got %v", err)
	}
	if err := (&LinkUpdateValidation{ID: "42"}).Validate(); err != nil {
		t.Fatalf("id alone is a valid delete, got %v", err)
	}

	err := (&LinkUpdateValidation{Original: "nope", Shortened: "bad alias!"}).Validate()
	var verrs Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verrs) != 3 {
		t.Fatalf("expected id, original and shortened errors, got %v", verrs)
	}
}

func TestValidateAlias(t *testing.T) {
	for _, ok := range []string{"a", "abc-DEF_123", strings.Repeat("x", 64)} {
		if err := ValidateAlias(ok, "alias"); err != nil {
			t.Errorf("%q: unexpected error %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has space", "slash/", "dot.", strings.Repeat("x", 65)} {
		if err := ValidateAlias(bad, "alias"); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestErrorsMessage(t *testing.T) {
	var verrs Errors
	if verrs.Error() != "validation failed" {
		t.Errorf("unexpected empty message %q", verrs.Error())
	}
	verrs.Add("url", "is required")
	verrs.Add("", "something else")
	if got := verrs.Error(); got != "url: is required; something else" {
		t.Errorf("unexpected message %q", got)
	}
}
