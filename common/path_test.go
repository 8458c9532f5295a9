package common

import "testing"

func TestExpandLogDirPath(t *testing.T) {
	t.Setenv("APP_ROOT", "/srv/app")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "unix style variable",
			input:    "$APP_ROOT/logs",
			expected: "/srv/app/logs",
		},
		{
			name:     "windows style with built-in default",
			input:    "%DATA_DIR%/logs",
			expected: "/data/logs",
		},
		{
			name:     "unknown windows style passes through",
			input:    "%UNKNOWN_VAR%/logs",
			expected: "%UNKNOWN_VAR%/logs",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := expandLogDirPath(tc.input); got != tc.expected {
				t.Fatalf("expandLogDirPath(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
