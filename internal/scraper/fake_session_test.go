package scraper

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type fakeSession struct {
	mu          sync.Mutex
	title       string
	html        string
	navErr      error
	waitErr     error
	htmlErr     error
	navigations []string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, url)
	return s.navErr
}

func (s *fakeSession) Title(context.Context) (string, error) { return s.title, nil }

func (s *fakeSession) HTML(context.Context) (string, error) {
	if s.htmlErr != nil {
		return "", s.htmlErr
	}
	return s.html, nil
}

func (s *fakeSession) WaitVisible(_ context.Context, selector string) error {
	if s.waitErr != nil {
		return s.waitErr
	}
	if !strings.Contains(s.html, "addToCartButton") {
		return errors.New("selector " + selector + " not found")
	}
	return nil
}
