package httputil

import (
	"net/url"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid HTTPS", "https://example.com/path", false},
		{"valid HTTP", "http://cdn.example.com/v.mp4", false},
		{"javascript scheme rejected", "javascript:alert(1)", true},
		{"data scheme rejected", "data:text/html,<h1>Hi</h1>", true},
		{"FTP rejected", "ftp://example.com/file", true},
		{"file rejected", "file:///etc/passwd", true},
		{"empty string", "", true},
		{"no host", "https://", true},
		{"valid with port", "https://example.com:8080/path", false},
		{"valid with query", "https://example.com/path?q=test&a=b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestResolveReference(t *testing.T) {
	base, _ := url.Parse("https://www.instagram.com/p/ABC/")
	tests := []struct {
		ref  string
		want string
	}{
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"//cdn.example.com/b.jpg", "https://cdn.example.com/b.jpg"},
		{"/static/c.jpg", "https://www.instagram.com/static/c.jpg"},
		{"  ", ""},
		{"blob:https://www.instagram.com/1234", ""},
		{"data:image/png;base64,AAAA", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if got := ResolveReference(base, tt.ref); got != tt.want {
				t.Errorf("ResolveReference(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal filename", "instagram_42_1700000000000.mp4", "instagram_42_1700000000000.mp4"},
		{"path traversal", "../../etc/passwd", "passwd"},
		{"directory components", "/home/user/secret.txt", "secret.txt"},
		{"null bytes", "clip\x00.mp4", "clip.mp4"},
		{"Windows special chars", "clip<>:\"|?*.mp4", "clip_______.mp4"},
		{"spaces", "my clip.mp4", "my_clip.mp4"},
		{"double dots", "clip..mp4", "clip_mp4"},
		{"empty string", "", "untitled"},
		{"just dots", "..", "_"},
		{"just dot", ".", "untitled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSafeDownloadPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"normal", "facebook_7_1.jpg", false},
		{"path traversal attempt", "../../etc/passwd", false}, // sanitized to "passwd"
		{"shell injection", "$(whoami).mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := SafeDownloadPath(dir, tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("SafeDownloadPath(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if err == nil && !Contained(dir, path) {
				t.Errorf("SafeDownloadPath returned %q outside %q", path, dir)
			}
		})
	}
}
