package trust

import (
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/knightjoel/zpark/core"
)

func TestEmptyListAllowsEveryone(t *testing.T) {
	list := NewList(nil)
	allowed, err := list.Allows("anyone@example.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("empty list must allow all senders")
	}
}

func TestBlankSentinelDeniesEveryone(t *testing.T) {
	list := NewList([]string{""})
	if !list.Configured() {
		t.Fatal("blank sentinel still counts as configured")
	}
	allowed, err := list.Allows("anyone@example.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("blank sentinel must match no sender")
	}
}

func TestExactAddressMatch(t *testing.T) {
	list := NewList([]string{"jdoe@example.net"})

	cases := []struct {
		email   string
		allowed bool
	}{
		{"jdoe@example.net", true},
		{"JDoe@Example.NET", true},
		{"  jdoe@example.net  ", true},
		{"other@example.net", false},
		{"jdoe@example.net.evil.com", false},
	}
	for _, tc := range cases {
		allowed, err := list.Allows(tc.email)
		if err != nil {
			t.Fatalf("Allows(%q): %v", tc.email, err)
		}
		if allowed != tc.allowed {
			t.Fatalf("Allows(%q) = %v, want %v", tc.email, allowed, tc.allowed)
		}
	}
}

func TestDomainSuffixMatch(t *testing.T) {
	list := NewList([]string{"@example.net"})

	cases := []struct {
		email   string
		allowed bool
	}{
		{"anyone@example.net", true},
		{"AnyOne@EXAMPLE.net", true},
		{"anyone@sub.example.net", false},
		{"anyone@example.com", false},
	}
	for _, tc := range cases {
		allowed, err := list.Allows(tc.email)
		if err != nil {
			t.Fatalf("Allows(%q): %v", tc.email, err)
		}
		if allowed != tc.allowed {
			t.Fatalf("Allows(%q) = %v, want %v", tc.email, allowed, tc.allowed)
		}
	}
}

func TestMissingEmailIsStructural(t *testing.T) {
	list := NewList([]string{"jdoe@example.net"})
	_, err := list.Allows("   ")
	if err == nil {
		t.Fatal("expected structural error for blank sender")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected goerrors envelope, got %T", err)
	}
	if richErr.TextCode != core.BotErrorMalformedInput {
		t.Fatalf("expected %s, got %q", core.BotErrorMalformedInput, richErr.TextCode)
	}
}

func TestCheckClassifiesDenials(t *testing.T) {
	list := NewList([]string{"jdoe@example.net"})
	if err := list.Check("jdoe@example.net"); err != nil {
		t.Fatalf("trusted sender must pass, got %v", err)
	}

	err := list.Check("mallory@evil.test")
	if err == nil {
		t.Fatal("expected denial")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected goerrors envelope, got %T", err)
	}
	if richErr.TextCode != core.BotErrorUntrustedSender {
		t.Fatalf("expected %s, got %q", core.BotErrorUntrustedSender, richErr.TextCode)
	}
	if richErr.Category != goerrors.CategoryAuthz {
		t.Fatalf("expected authz category, got %v", richErr.Category)
	}
}
