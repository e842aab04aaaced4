package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("timed out waiting for condition")
)

// DefaultPollInterval is how often WaitUntil re-evaluates its condition.
const DefaultPollInterval = 250 * time.Millisecond

// Element is a handle to a single node of the current page.
type Element interface {
	Click() error
	SendKeys(text string) error
	Text() (string, error)
	Visible() (bool, error)
	ScrollIntoView() error
}

// Session is the capability surface the scrapers drive. It holds one logical
// cursor position in the site and must not be shared between goroutines.
type Session interface {
	Navigate(url string) error
	FindElement(selector string) (Element, error)
	FindAllElements(selector string) ([]Element, error)
	WaitUntil(cond Condition, timeout time.Duration) error
	CurrentURL() string
	Back() error
	PressEscape() error
	Content() (string, error)
	Close() error
}

// Opener hands out fresh sessions, one per unit of work.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// Condition reports whether the awaited page state holds. Returning
// ErrElementNotFound means "not yet"; any other error aborts the wait.
type Condition func(s Session) (bool, error)

// Poll evaluates cond until it holds or timeout elapses.
func Poll(s Session, cond Condition, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		ok, err := cond(s)
		if err != nil && !errors.Is(err, ErrElementNotFound) {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		time.Sleep(interval)
	}
}

func ElementPresent(selector string) Condition {
	return func(s Session) (bool, error) {
		if _, err := s.FindElement(selector); err != nil {
			return false, err
		}
		return true, nil
	}
}

func ElementVisible(selector string) Condition {
	return func(s Session) (bool, error) {
		el, err := s.FindElement(selector)
		if err != nil {
			return false, err
		}
		return el.Visible()
	}
}

func URLChanged(from string) Condition {
	return func(s Session) (bool, error) {
		return s.CurrentURL() != from, nil
	}
}

func URLContains(fragment string) Condition {
	return func(s Session) (bool, error) {
		return strings.Contains(s.CurrentURL(), fragment), nil
	}
}

// WaitForElement waits until selector is visible and returns it. A timeout is
// reported as ErrElementNotFound so callers can treat both the same way.
func WaitForElement(s Session, selector string, timeout time.Duration) (Element, error) {
	if err := s.WaitUntil(ElementVisible(selector), timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s (%v)", ErrElementNotFound, selector, err)
		}
		return nil, err
	}
	return s.FindElement(selector)
}

// WaitForElements waits until at least one match of selector exists and
// returns all matches.
func WaitForElements(s Session, selector string, timeout time.Duration) ([]Element, error) {
	if err := s.WaitUntil(ElementPresent(selector), timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s (%v)", ErrElementNotFound, selector, err)
		}
		return nil, err
	}
	return s.FindAllElements(selector)
}

// TextOf returns the text of selector, or the fallback when the element is
// missing or unreadable.
func TextOf(s Session, selector, fallback string) string {
	el, err := s.FindElement(selector)
	if err != nil {
		return fallback
	}
	text, err := el.Text()
	if err != nil {
		return fallback
	}
	return text
}
