package explain

import (
	"strings"
	"testing"
)

func TestSanitizeMasksCredentials(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		leaked  string
		visible string
	}{
		{
			name:    "password assignment",
			in:      "connecting with password=hunter2 to db",
			leaked:  "hunter2",
			visible: "password=[MASKED]",
		},
		{
			name:    "password colon",
			in:      "PASSWORD: s3cret!",
			leaked:  "s3cret",
			visible: "[MASKED]",
		},
		{
			name:    "api key",
			in:      "using api_key=sk-abc123def",
			leaked:  "sk-abc123def",
			visible: "api_key=[MASKED]",
		},
		{
			name:    "token",
			in:      "auth token: eyJhbGciOi",
			leaked:  "eyJhbGciOi",
			visible: "[MASKED]",
		},
		{
			name:    "bearer header",
			in:      "Authorization: Bearer abc.def.ghi",
			leaked:  "abc.def.ghi",
			visible: "Bearer [MASKED]",
		},
		{
			name:    "email",
			in:      "user admin@example.com logged in",
			leaked:  "admin@example.com",
			visible: "[EMAIL]",
		},
		{
			name:    "ip address",
			in:      "request from 192.168.1.100 refused",
			leaked:  "192.168.1.100",
			visible: "[IP]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := sanitize(tc.in)
			if strings.Contains(out, tc.leaked) {
				t.Errorf("sanitize(%q) = %q, still contains %q", tc.in, out, tc.leaked)
			}
			if !strings.Contains(out, tc.visible) {
				t.Errorf("sanitize(%q) = %q, want it to contain %q", tc.in, out, tc.visible)
			}
		})
	}
}

func TestSanitizeKeepsPlainText(t *testing.T) {
	in := "service nginx restarted successfully after 3 attempts"
	if out := sanitize(in); out != in {
		t.Errorf("sanitize(%q) = %q, want unchanged", in, out)
	}
}

func TestSanitizeTruncatesToTail(t *testing.T) {
	head := strings.Repeat("old line\n", 2000)
	tail := "newest entry"
	out := sanitize(head + tail)

	if len(out) > maxCorpusBytes {
		t.Errorf("len = %d, want <= %d", len(out), maxCorpusBytes)
	}
	if !strings.HasSuffix(out, tail) {
		t.Error("truncation must keep the tail of the corpus")
	}
}

func TestSanitizeMasksInsideTruncatedTail(t *testing.T) {
	pad := strings.Repeat("x", maxCorpusBytes)
	out := sanitize(pad + "\npassword=topsecret end")
	if strings.Contains(out, "topsecret") {
		t.Error("credentials in the kept tail must still be masked")
	}
}
