package helper

import "testing"

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{
			name:     "long sso cookie",
			token:    "eyJhbGciOiJIUzI1NiJ9.eyJzZXNzaW9uX2lkIn0",
			expected: "eyJhbG...kIn0",
		},
		{
			name:     "exactly 12 chars",
			token:    "123456789012",
			expected: "123456...9012",
		},
		{
			name:     "short value",
			token:    "short",
			expected: "***",
		},
		{
			name:     "empty value",
			token:    "",
			expected: "***",
		},
		{
			name:     "11 chars (just under threshold)",
			token:    "12345678901",
			expected: "***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskToken(tt.token)
			if result != tt.expected {
				t.Errorf("MaskToken(%q) = %q, expected %q", tt.token, result, tt.expected)
			}
		})
	}
}

func TestMaskTokenDisplay(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{
			name:     "long credential keeps both ends",
			token:    "abcdefgh0123456789ZYXWVUTSRQPONM",
			expected: "abcdefgh...89ZYXWVUTSRQPONM",
		},
		{
			name:     "sso prefix is stripped before masking",
			token:    "sso=abcdefgh0123456789ZYXWVUTSRQPONM",
			expected: "abcdefgh...89ZYXWVUTSRQPONM",
		},
		{
			name:     "24 chars or fewer pass through",
			token:    "123456789012345678901234",
			expected: "123456789012345678901234",
		},
		{
			name:     "empty value",
			token:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskTokenDisplay(tt.token)
			if result != tt.expected {
				t.Errorf("MaskTokenDisplay(%q) = %q, expected %q", tt.token, result, tt.expected)
			}
		})
	}
}
