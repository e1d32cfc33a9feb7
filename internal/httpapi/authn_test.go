package httpapi

import "testing"

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"  Bearer   token  ", "token", false},
		{"", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("header %q: %v", tc.header, err)
			continue
		}
		if got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, path := range []string{"/v1/auth/token", "/healthz", "/readyz", "/metrics", "/v1/info"} {
		if !isPublicPath(path) {
			t.Errorf("%s should be public", path)
		}
	}
	for _, path := range []string{"/v1/projects", "/v1/access/logs", "/v1/users/abc"} {
		if isPublicPath(path) {
			t.Errorf("%s should require authentication", path)
		}
	}
}
