package sheets

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/sheets/v4"
)

// mockAPI is an in-memory spreadsheetAPI for tests.
type mockAPI struct {
	UpdateFn  func(rangeStr string, values [][]any) error
	FormatFn  func(requests []*sheets.Request) error
	tabs      map[string]int64
	cleared   []string
	updates   map[string][][]any
	created   []string
	formatted int
	nextID    int64
	mu        sync.Mutex
}

func newMockAPI(existingTabs ...string) *mockAPI {
	m := &mockAPI{tabs: make(map[string]int64), updates: make(map[string][][]any)}
	for _, t := range existingTabs {
		m.tabs[t] = m.nextID
		m.nextID++
	}
	return m
}

func (m *mockAPI) Create(_ context.Context, title, _ string, tabs []string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, title)
	for _, t := range tabs {
		m.tabs[t] = m.nextID
		m.nextID++
	}
	id := fmt.Sprintf("sheet-%d", len(m.created))
	return id, "https://docs.google.com/spreadsheets/d/" + id, nil
}

func (m *mockAPI) Tabs(_ context.Context, _ string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.tabs))
	for k, v := range m.tabs {
		out[k] = v
	}
	return out, nil
}

func (m *mockAPI) AddTab(_ context.Context, _ string, title string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[title] = m.nextID
	m.nextID++
	return m.tabs[title], nil
}

func (m *mockAPI) Clear(_ context.Context, _ string, rangeStr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, rangeStr)
	return nil
}

func (m *mockAPI) Update(_ context.Context, _ string, rangeStr string, values [][]any) error {
	if m.UpdateFn != nil {
		if err := m.UpdateFn(rangeStr, values); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[rangeStr] = values
	return nil
}

func (m *mockAPI) Format(_ context.Context, _ string, requests []*sheets.Request) error {
	if m.FormatFn != nil {
		if err := m.FormatFn(requests); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatted++
	return nil
}
