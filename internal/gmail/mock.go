package gmail

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// MockClient is an in-memory mail provider for tests. Messages added with AddMessage
// are listed in insertion order; any *Fn field overrides the default behavior.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	ListMessageIDsFn    func(ctx context.Context, query, pageToken string) (service.MessagePage, error)
	FetchMessageFn      func(ctx context.Context, id string) (*model.InboundMessage, error)
	FetchChangesSinceFn func(ctx context.Context, cursor string) (service.ChangeSet, error)
	FetchAttachmentFn   func(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	CurrentCursorFn     func(ctx context.Context) (string, error)

	messages    map[string]*model.InboundMessage
	attachments map[string][]byte
	order       []string

	// Cursor is returned by CurrentCursor and as the new cursor of FetchChangesSince.
	Cursor   string
	PageSize int

	// Call tracking
	ListCalls       []ListCall
	FetchCalls      []string
	ChangesCalls    []string
	AttachmentCalls int
	CursorCalls     int

	mu sync.Mutex
}

// ListCall records the parameters of a ListMessageIDs call.
type ListCall struct {
	Query     string
	PageToken string
}

// NewMockClient creates an empty mock mailbox.
func NewMockClient() *MockClient {
	return &MockClient{
		messages:    make(map[string]*model.InboundMessage),
		attachments: make(map[string][]byte),
		Cursor:      "1000",
		PageSize:    100,
	}
}

// AddMessage puts a message in the mailbox.
func (m *MockClient) AddMessage(msg *model.InboundMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		m.order = append(m.order, msg.ID)
	}
	m.messages[msg.ID] = msg
}

// AddAttachment stores attachment bytes under an attachment id.
func (m *MockClient) AddAttachment(attachmentID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[attachmentID] = data
}

// ListMessageIDs implements service.MailProvider.
func (m *MockClient) ListMessageIDs(ctx context.Context, query, pageToken string) (service.MessagePage, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, ListCall{Query: query, PageToken: pageToken})
	fn := m.ListMessageIDsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, query, pageToken)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return service.MessagePage{}, fmt.Errorf("bad page token %q", pageToken)
		}
		start = n
	}
	end := min(start+m.PageSize, len(m.order))
	page := service.MessagePage{IDs: append([]string(nil), m.order[start:end]...)}
	if end < len(m.order) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// FetchMessage implements service.MailProvider.
func (m *MockClient) FetchMessage(ctx context.Context, id string) (*model.InboundMessage, error) {
	m.mu.Lock()
	m.FetchCalls = append(m.FetchCalls, id)
	fn := m.FetchMessageFn
	msg, ok := m.messages[id]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, common.ErrNotFound)
	}
	return msg, nil
}

// FetchChangesSince implements service.MailProvider. By default it reports no changes.
func (m *MockClient) FetchChangesSince(ctx context.Context, cursor string) (service.ChangeSet, error) {
	m.mu.Lock()
	m.ChangesCalls = append(m.ChangesCalls, cursor)
	fn := m.FetchChangesSinceFn
	current := m.Cursor
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, cursor)
	}
	return service.ChangeSet{NewCursor: current}, nil
}

// FetchAttachment implements service.MailProvider.
func (m *MockClient) FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	m.mu.Lock()
	m.AttachmentCalls++
	fn := m.FetchAttachmentFn
	data, ok := m.attachments[attachmentID]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messageID, attachmentID)
	}
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", attachmentID, common.ErrNotFound)
	}
	return data, nil
}

// CurrentCursor implements service.MailProvider.
func (m *MockClient) CurrentCursor(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.CursorCalls++
	fn := m.CurrentCursorFn
	current := m.Cursor
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return current, nil
}

// FetchCount returns how many FetchMessage calls were made.
func (m *MockClient) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FetchCalls)
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = nil
	m.FetchCalls = nil
	m.ChangesCalls = nil
	m.AttachmentCalls = 0
	m.CursorCalls = 0
}

// Ensure MockClient implements the mail provider interface.
var _ service.MailProvider = (*MockClient)(nil)
