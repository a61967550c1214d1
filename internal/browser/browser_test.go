package browser

import (
	"errors"
	"testing"
)

func stubLaunch(t *testing.T, err error) *[]string {
	t.Helper()
	var got []string
	orig := launch
	launch = func(name string, args ...string) error {
		got = append([]string{name}, args...)
		return err
	}
	t.Cleanup(func() { launch = orig })
	return &got
}

func TestOpenRejectsNonHTTP(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://x.com/gopher/status/1", false},
		{"http://example.com", false},
		{"file:///etc/passwd", true},
		{"javascript:alert(1)", true},
		{"ftp://example.com", true},
		{"https://", true},
		{"", true},
	}

	for _, tt := range tests {
		got := stubLaunch(t, nil)
		err := Open(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Open(%q): expected error, got nil", tt.url)
			}
			if len(*got) != 0 {
				t.Errorf("Open(%q): launched %v for a rejected URL", tt.url, *got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%q): unexpected error %v", tt.url, err)
		}
	}
}

func TestOpenLaunchFailure(t *testing.T) {
	stubLaunch(t, errors.New("no display"))
	if err := Open("https://x.com/i/status/1"); err == nil {
		t.Error("expected launch failure to be returned")
	}
}

func TestOpener(t *testing.T) {
	tests := []struct {
		goos string
		name string
	}{
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"freebsd", "xdg-open"},
		{"windows", "rundll32"},
	}
	for _, tt := range tests {
		name, args := opener(tt.goos, "https://x.com")
		if name != tt.name {
			t.Errorf("opener(%s) = %s, want %s", tt.goos, name, tt.name)
		}
		if args[len(args)-1] != "https://x.com" {
			t.Errorf("opener(%s) args = %v", tt.goos, args)
		}
	}
}
