package main

import "testing"

func TestDeriveHTTPBase(t *testing.T) {
	tests := map[string]string{
		"ws://127.0.0.1:8080/ws":   "http://127.0.0.1:8080",
		"wss://obs.example.org/ws": "https://obs.example.org",
		"::not a url":              "http://127.0.0.1:8080",
	}
	for in, want := range tests {
		if got := deriveHTTPBase(in); got != want {
			t.Errorf("deriveHTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}
