package server

import "testing"

func TestShouldSkipAPIKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{path: "/ping", want: true},
		{path: "/health", want: true},
		{path: "/ws", want: true},
		{path: "/uploads/alpha/1-abc.jpg", want: true},
		{path: "/uploadsx", want: false},
		{path: "/sessions", want: false},
		{path: "/messages/send", want: false},
	}

	for _, tc := range cases {
		got := shouldSkipAPIKey(tc.path)
		if got != tc.want {
			t.Fatalf("path=%q want=%v got=%v", tc.path, tc.want, got)
		}
	}
}
