package version

import "testing"

func TestIsDev(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	tests := []struct {
		version  string
		expected bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"v1.2.3", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			if got := IsDev(); got != tt.expected {
				t.Errorf("IsDev() with Version=%q = %v, want %v", tt.version, got, tt.expected)
			}
		})
	}
}

func TestFull(t *testing.T) {
	origV, origC, origD := Version, Commit, Date
	defer func() { Version, Commit, Date = origV, origC, origD }()

	Version = "dev"
	if got := Full(); got != "rocketctl version dev (built from source)" {
		t.Errorf("Full() with dev = %q", got)
	}

	Version, Commit, Date = "1.2.3", "abc123", "2026-01-02"
	if got := Full(); got != "rocketctl version 1.2.3 (abc123, 2026-01-02)" {
		t.Errorf("Full() with 1.2.3 = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	Version = "1.0.0"
	if got := UserAgent(); got != "rocketctl/1.0.0 (+https://github.com/wolfdevsllc/rocketctl)" {
		t.Errorf("UserAgent() with 1.0.0 = %q", got)
	}
}
