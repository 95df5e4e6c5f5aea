package loanstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", displayName("Jane", "Doe"))
	assert.Equal(t, "Jane", displayName("Jane", ""))
	assert.Equal(t, "Unnamed borrower", displayName("", ""))
	assert.Equal(t, "Unnamed borrower", displayName("  ", "  "))
}

func TestNormalizeFields(t *testing.T) {
	out := normalizeFields(map[string]any{
		"Citizenship Type": "US_CITIZEN",
		"self-employed":    true,
	})
	assert.Equal(t, "US_CITIZEN", out["citizenship_type"])
	assert.Equal(t, true, out["self_employed"])
}
