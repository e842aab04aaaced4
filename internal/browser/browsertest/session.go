// Package browsertest provides a scripted, in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/browser"
)

type Element struct {
	Value   string
	TextErr error
	Hidden  bool
	OnClick func() error
	Clicks  int
	Keys    []string
}

func (e *Element) Click() error {
	e.Clicks++
	if e.OnClick != nil {
		return e.OnClick()
	}
	return nil
}

func (e *Element) SendKeys(text string) error {
	e.Keys = append(e.Keys, text)
	return nil
}

func (e *Element) Text() (string, error) {
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.Value, nil
}

func (e *Element) Visible() (bool, error) {
	return !e.Hidden, nil
}

func (e *Element) ScrollIntoView() error {
	return nil
}

// Session keeps a URL history and a selector → elements table that tests
// rewrite from click callbacks.
type Session struct {
	Elements    map[string][]*Element
	HTML        map[string]string
	History     []string
	Navigations []string
	Escapes     int
	Closed      bool
	OnNavigate  func(s *Session, url string) error
}

func New() *Session {
	return &Session{
		Elements: map[string][]*Element{},
		HTML:     map[string]string{},
	}
}

// Set replaces the elements matching selector.
func (s *Session) Set(selector string, elements ...*Element) {
	if len(elements) == 0 {
		delete(s.Elements, selector)
		return
	}
	s.Elements[selector] = elements
}

// Text registers a single element with the given text.
func (s *Session) Text(selector, text string) *Element {
	el := &Element{Value: text}
	s.Set(selector, el)
	return el
}

// Go moves the session to url without recording a navigation call.
func (s *Session) Go(url string) {
	s.History = append(s.History, url)
}

func (s *Session) Navigate(url string) error {
	s.Navigations = append(s.Navigations, url)
	s.Go(url)
	if s.OnNavigate != nil {
		return s.OnNavigate(s, url)
	}
	return nil
}

func (s *Session) FindElement(selector string) (browser.Element, error) {
	els := s.Elements[selector]
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return els[0], nil
}

func (s *Session) FindAllElements(selector string) ([]browser.Element, error) {
	out := make([]browser.Element, 0, len(s.Elements[selector]))
	for _, el := range s.Elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

// WaitUntil evaluates cond exactly once; scripted pages never change on
// their own.
func (s *Session) WaitUntil(cond browser.Condition, timeout time.Duration) error {
	return browser.Poll(s, cond, 0, time.Millisecond)
}

func (s *Session) CurrentURL() string {
	if len(s.History) == 0 {
		return "about:blank"
	}
	return s.History[len(s.History)-1]
}

func (s *Session) Back() error {
	if len(s.History) > 1 {
		s.History = s.History[:len(s.History)-1]
	}
	return nil
}

func (s *Session) PressEscape() error {
	s.Escapes++
	return nil
}

func (s *Session) Content() (string, error) {
	html, ok := s.HTML[s.CurrentURL()]
	if !ok {
		return "", fmt.Errorf("no content scripted for %s", s.CurrentURL())
	}
	return html, nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}

// Opener hands out scripted sessions in order, building each with Build.
type Opener struct {
	Build  func(n int) (*Session, error)
	Opened []*Session
}

func (o *Opener) Open(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := o.Build(len(o.Opened))
	if err != nil {
		return nil, err
	}
	o.Opened = append(o.Opened, s)
	return s, nil
}
