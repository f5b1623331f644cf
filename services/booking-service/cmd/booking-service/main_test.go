package main

import "testing"

func TestIsUnauthenticated(t *testing.T) {
	cases := map[string]bool{
		"/api/v1/public/slots":       true,
		"/api/v1/public/book":        true,
		"/api/v1/providers":          true,
		"/healthz":                   true,
		"/readyz":                    true,
		"/api/v1/appointments":       false,
		"/api/v1/dashboard/stats":    false,
		"/api/v1/provider/services":  false,
		"/api/v1/providers/anything": false,
	}
	for path, want := range cases {
		if got := isUnauthenticated(path); got != want {
			t.Fatalf("%s: expected %v, got %v", path, want, got)
		}
	}
}
