package server

import "testing"

func TestShouldSkipJWT_PublicPaths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/webhooks/whatsapp", want: true},
		{path: "/webhooks/slack", want: true},
		{path: "/webhooks", want: false},
		{path: "/tenants/t-1/channels", want: false},
		{path: "/tenants/t-1/conversations", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipJWT(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
