package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PageSession implements Session on top of a single playwright page.
type PageSession struct {
	page         playwright.Page
	timeout      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewPageSession(page playwright.Page, timeout time.Duration, logger *slog.Logger) *PageSession {
	return &PageSession{
		page:         page,
		timeout:      timeout,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

func (s *PageSession) Navigate(url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds()) * 3),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *PageSession) FindElement(selector string) (Element, error) {
	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return &pageElement{handle: handle}, nil
}

func (s *PageSession) FindAllElements(selector string) ([]Element, error) {
	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", selector, err)
	}

	elements := make([]Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &pageElement{handle: h})
	}
	return elements, nil
}

func (s *PageSession) WaitUntil(cond Condition, timeout time.Duration) error {
	return Poll(s, cond, timeout, s.pollInterval)
}

func (s *PageSession) CurrentURL() string {
	return s.page.URL()
}

func (s *PageSession) Back() error {
	if _, err := s.page.GoBack(); err != nil {
		return fmt.Errorf("failed to go back: %w", err)
	}
	return nil
}

func (s *PageSession) PressEscape() error {
	return s.page.Keyboard().Press("Escape")
}

func (s *PageSession) Content() (string, error) {
	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (s *PageSession) Close() error {
	return s.page.Close()
}

type pageElement struct {
	handle playwright.ElementHandle
}

func (e *pageElement) Click() error {
	return e.handle.Click()
}

func (e *pageElement) SendKeys(text string) error {
	return e.handle.Fill(text)
}

func (e *pageElement) Text() (string, error) {
	return e.handle.InnerText()
}

func (e *pageElement) Visible() (bool, error) {
	return e.handle.IsVisible()
}

func (e *pageElement) ScrollIntoView() error {
	return e.handle.ScrollIntoViewIfNeeded()
}
