package format

import (
	"testing"
)

func TestSubstituteBasic(t *testing.T) {
	result := Substitute("Hello {name}, welcome to {place}!", map[string]string{
		"name":  "Dogmeat",
		"place": "Sanctuary",
	})
	if result != "Hello Dogmeat, welcome to Sanctuary!" {
		t.Errorf("Unexpected substitution result: %q", result)
	}
}

func TestSubstituteMissingKey(t *testing.T) {
	result := Substitute("Size: {size}", map[string]string{})
	if result != "Size: N/A" {
		t.Errorf("Expected missing key to become the sentinel, got %q", result)
	}
}

func TestSubstituteEmptyValue(t *testing.T) {
	result := Substitute("Version: {version}", map[string]string{"version": ""})
	if result != "Version: N/A" {
		t.Errorf("Expected empty value to become the sentinel, got %q", result)
	}
}

func TestSubstituteEscapedBraces(t *testing.T) {
	result := Substitute("{{credits|{amount}}}", map[string]string{"amount": "500"})
	if result != "{credits|500}" {
		t.Errorf("Expected doubled braces to escape, got %q", result)
	}
}

func TestSubstituteUnterminatedPlaceholder(t *testing.T) {
	result := Substitute("broken {placeholder", map[string]string{
		"placeholder": "value",
	})
	if result != "broken {placeholder" {
		t.Errorf("Expected unterminated placeholder kept literal, got %q", result)
	}
}
