package pages

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// SavedRoutesPage lists the routes stored in the backend.
type SavedRoutesPage struct {
	page    playwright.Page
	baseURL string
	timeout float64
}

func NewSavedRoutesPage(page playwright.Page, baseURL string) *SavedRoutesPage {
	return &SavedRoutesPage{page: page, baseURL: strings.TrimRight(baseURL, "/"), timeout: DefaultTimeout}
}

// Goto opens the list and waits until either routes or the empty state
// are rendered.
func (s *SavedRoutesPage) Goto() error {
	if _, err := s.page.Goto(s.baseURL+"/routes", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to saved routes: %w", err)
	}
	return s.WaitForList()
}

func (s *SavedRoutesPage) WaitForList() error {
	err := s.page.Locator(selSavedRoute + ", " + selEmptyState).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(s.timeout),
	})
	if err != nil {
		return fmt.Errorf("saved routes list: %w", err)
	}
	return nil
}

// Names returns the displayed route names in list order.
func (s *SavedRoutesPage) Names() ([]string, error) {
	texts, err := s.page.Locator(selSavedRoute + " " + selSavedName).AllTextContents()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(texts))
	for _, t := range texts {
		names = append(names, strings.TrimSpace(t))
	}
	return names, nil
}

func (s *SavedRoutesPage) Count() (int, error) {
	return s.page.Locator(selSavedRoute).Count()
}

func (s *SavedRoutesPage) IsEmpty() (bool, error) {
	return s.page.Locator(selEmptyState).IsVisible()
}

func (s *SavedRoutesPage) item(name string) playwright.Locator {
	return s.page.Locator(selSavedRoute).Filter(playwright.LocatorFilterOptions{
		Has: s.page.Locator(selSavedName, playwright.PageLocatorOptions{HasText: name}),
	}).First()
}

// Open loads the named route back into the map view.
func (s *SavedRoutesPage) Open(name string) (*MapPage, error) {
	if err := s.item(name).Locator(selOpenRoute).Click(); err != nil {
		return nil, fmt.Errorf("open route %q: %w", name, err)
	}
	mp := NewMapPage(s.page, s.baseURL)
	if err := mp.WaitForMapReady(); err != nil {
		return nil, err
	}
	return mp, nil
}

// Delete removes the named route through the UI, confirming the dialog
// when the app shows one.
func (s *SavedRoutesPage) Delete(name string) error {
	item := s.item(name)
	if err := item.Locator(selDeleteRoute).Click(); err != nil {
		return fmt.Errorf("delete route %q: %w", name, err)
	}
	confirm := s.page.Locator(selConfirmDelete)
	if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(2000),
	}); err == nil {
		if err := confirm.Click(); err != nil {
			return fmt.Errorf("confirm delete: %w", err)
		}
	}
	return item.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateDetached,
		Timeout: playwright.Float(s.timeout),
	})
}
