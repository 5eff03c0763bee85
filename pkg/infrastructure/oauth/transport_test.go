package oauth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

// fakeTokenSource serves canned tokens and counts calls.
type fakeTokenSource struct {
	tokens        []string
	tokenCalls    int
	forceRefCalls int
}

func (f *fakeTokenSource) current() *Token {
	i := f.tokenCalls + f.forceRefCalls - 1
	if i >= len(f.tokens) {
		i = len(f.tokens) - 1
	}
	return &Token{AccessToken: f.tokens[i]}
}

func (f *fakeTokenSource) Token(ctx context.Context) (*Token, error) {
	f.tokenCalls++
	return f.current(), nil
}

func (f *fakeTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	f.forceRefCalls++
	return f.current(), nil
}

// sequenceTransport returns scripted statuses and records the
// Authorization header of each request.
type sequenceTransport struct {
	statuses []int
	auth     []string
}

func (s *sequenceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.auth = append(s.auth, req.Header.Get("Authorization"))
	status := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("{}")),
		Request:    req,
	}, nil
}

func TestTransportInjectsBearer(t *testing.T) {
	source := &fakeTokenSource{tokens: []string{"token-a"}}
	base := &sequenceTransport{statuses: []int{200}}
	client := NewHTTPClientWithBase(source, base)

	resp, err := client.Get("https://www.strava.com/api/v3/activities/1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if len(base.auth) != 1 || base.auth[0] != "Bearer token-a" {
		t.Errorf("unexpected auth headers: %v", base.auth)
	}
	if source.forceRefCalls != 0 {
		t.Errorf("unexpected force refresh")
	}
}

func TestTransportForceRefreshesOn401(t *testing.T) {
	source := &fakeTokenSource{tokens: []string{"stale", "fresh"}}
	base := &sequenceTransport{statuses: []int{401, 200}}
	client := NewHTTPClientWithBase(source, base)

	resp, err := client.Get("https://www.strava.com/api/v3/activities/1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected 200 after retry, got %d", resp.StatusCode)
	}
	if source.forceRefCalls != 1 {
		t.Errorf("expected 1 force refresh, got %d", source.forceRefCalls)
	}
	want := []string{"Bearer stale", "Bearer fresh"}
	if len(base.auth) != 2 || base.auth[0] != want[0] || base.auth[1] != want[1] {
		t.Errorf("unexpected auth headers: %v", base.auth)
	}
}
