package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/logging"
	"github.com/stanzahq/stanza/internal/models"
)

// Session errors.
var (
	ErrSessionClosed  = errors.New("chat session is closed")
	ErrNoActiveChat   = errors.New("no active conversation")
	ErrSessionNotOpen = errors.New("chat session is not open")
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// OnMessage registers a callback for each message added to the active
// conversation from the live channel. Duplicates are not reported.
func OnMessage(fn func(*models.Message)) SessionOption {
	return func(s *Session) {
		s.onMessage = fn
	}
}

// OnChange registers a callback invoked after the session state changes.
func OnChange(fn func()) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// Session is one user's chat view: the conversation list, at most one
// active conversation with its messages, and a compose draft. It owns its
// live subscription and must be closed when the view goes away.
type Session struct {
	svc    *Service
	live   events.Channel
	viewer string
	logger zerolog.Logger

	onMessage func(*models.Message)
	onChange  func()

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	handle    events.Handle
	open      bool
	closed    bool
	focused   bool
	summaries []*models.ConversationSummary
	query     string
	active    string
	messages  []*models.Message
	seen      map[string]struct{}
	draft     string
}

// NewSession creates a session for viewerID. Call Open to start it.
func NewSession(svc *Service, live events.Channel, viewerID string, opts ...SessionOption) *Session {
	s := &Session{
		svc:     svc,
		live:    live,
		viewer:  viewerID,
		logger:  logging.WithUser(logging.Component("chat-session"), viewerID),
		focused: true,
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open subscribes to message events and loads the conversation list.
// Subscribing happens before any fetch so no insert falls between the two.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.open {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	var handle events.Handle
	if s.live != nil {
		var err error
		handle, err = s.live.Subscribe(events.Filter{
			EntityTypes: []models.EntityType{models.EntityTypeMessage},
		}, s.handleEvent)
		if err != nil {
			s.cancel()
			return models.E("chat.Session.Open", models.ErrTransport, err)
		}
	}

	s.mu.Lock()
	s.handle = handle
	s.open = true
	s.mu.Unlock()

	s.refreshSummaries(ctx)
	return nil
}

// Close cancels the live subscription. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.open = false
	handle := s.handle
	s.handle = nil
	cancel := s.cancel
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// Activate makes conversationID the active conversation, loads its history
// and marks it read.
func (s *Session) Activate(ctx context.Context, conversationID string) error {
	if err := s.requireOpen(); err != nil {
		return err
	}

	s.mu.Lock()
	s.active = conversationID
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.draft = ""
	s.mu.Unlock()

	history, err := s.svc.ListMessages(ctx, conversationID)
	if err != nil {
		s.mu.Lock()
		if s.active == conversationID {
			s.active = ""
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.active == conversationID {
		for _, msg := range history {
			s.insertLocked(msg)
		}
	}
	s.mu.Unlock()

	s.markRead(ctx, conversationID)
	s.refreshSummaries(ctx)
	return nil
}

// StartDirect opens the conversation with otherUserID, creating it if this
// is the first contact.
func (s *Session) StartDirect(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if _, err := s.svc.GetProfile(ctx, otherUserID); err != nil {
		return nil, err
	}
	conversation, err := s.svc.GetOrCreate(ctx, s.viewer, otherUserID)
	if err != nil {
		return nil, err
	}
	if err := s.Activate(ctx, conversation.ID); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Back returns to the conversation list.
func (s *Session) Back() {
	s.mu.Lock()
	s.active = ""
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.draft = ""
	s.mu.Unlock()
	s.changed()
}

// SetFocused records whether the view is visible. Regaining focus on an
// active conversation marks it read.
func (s *Session) SetFocused(ctx context.Context, focused bool) {
	s.mu.Lock()
	wasFocused := s.focused
	s.focused = focused
	active := s.active
	s.mu.Unlock()

	if focused && !wasFocused && active != "" {
		s.markRead(ctx, active)
	}
}

// SetDraft replaces the compose draft.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Send appends the draft to the active conversation. The draft is cleared
// only on success; a failed send is never retried.
func (s *Session) Send(ctx context.Context) (*models.Message, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	active := s.active
	draft := s.draft
	s.mu.Unlock()

	if active == "" {
		return nil, models.E("chat.Session.Send", models.ErrValidation, ErrNoActiveChat)
	}

	msg, err := s.svc.Append(ctx, active, s.viewer, draft)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", active).Msg("send failed, draft kept")
		return nil, err
	}

	s.mu.Lock()
	if s.draft == draft {
		s.draft = ""
	}
	if s.active == active {
		s.insertLocked(msg)
	}
	s.mu.Unlock()
	s.changed()
	return msg, nil
}

// Filter narrows Conversations to those whose other participant's username
// or display name contains query, case-insensitively.
func (s *Session) Filter(query string) {
	s.mu.Lock()
	s.query = strings.ToLower(strings.TrimSpace(query))
	s.mu.Unlock()
}

// Conversations returns the (filtered) conversation summaries.
func (s *Session) Conversations() []*models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ConversationSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		if s.query != "" && !matchesQuery(summary.Other, s.query) {
			continue
		}
		out = append(out, summary)
	}
	return out
}

// Messages returns a copy of the active conversation's messages in order.
func (s *Session) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Message, len(s.messages))
	for i, msg := range s.messages {
		copied := *msg
		out[i] = &copied
	}
	return out
}

// Active returns the active conversation id, or "" on the list view.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Draft returns the compose draft.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) handleEvent(event *models.Event) {
	s.mu.Lock()
	if s.closed || !s.open {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	active := s.active
	focused := s.focused
	s.mu.Unlock()

	switch event.Type {
	case models.EventTypeMessageInserted:
		if event.ScopeID == active {
			s.receiveMessage(ctx, event, focused)
		}
	case models.EventTypeMessagesRead:
		if event.ScopeID == active {
			s.applyReadReceipt(event)
		}
	}

	s.refreshSummaries(ctx)
}

func (s *Session) receiveMessage(ctx context.Context, event *models.Event, focused bool) {
	msg, err := event.Message()
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("dropping malformed message event")
		return
	}

	if msg.Sender == nil {
		if profile, err := s.svc.GetProfile(ctx, msg.SenderID); err == nil {
			msg.Sender = profile
		}
	}

	s.mu.Lock()
	added := s.active == msg.ConversationID && s.insertLocked(msg)
	s.mu.Unlock()

	if !added {
		return
	}
	if s.onMessage != nil {
		s.onMessage(msg)
	}
	if focused && msg.SenderID != s.viewer {
		s.markRead(ctx, msg.ConversationID)
	}
}

func (s *Session) applyReadReceipt(event *models.Event) {
	receipt, err := event.MessagesRead()
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("dropping malformed read event")
		return
	}

	s.mu.Lock()
	if s.active == receipt.ConversationID {
		for _, msg := range s.messages {
			if msg.SenderID != receipt.ViewerID {
				msg.IsRead = true
			}
		}
	}
	s.mu.Unlock()
}

// insertLocked adds a copy of msg in (CreatedAt, Seq) order unless a message
// with the same id is already present. Reports whether it was added. The
// caller keeps msg; the session only mutates its own copy.
func (s *Session) insertLocked(msg *models.Message) bool {
	if _, ok := s.seen[msg.ID]; ok {
		return false
	}
	s.seen[msg.ID] = struct{}{}

	stored := *msg
	i := sort.Search(len(s.messages), func(i int) bool {
		return stored.Before(s.messages[i])
	})
	s.messages = append(s.messages, nil)
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = &stored
	return true
}

func (s *Session) markRead(ctx context.Context, conversationID string) {
	count, err := s.svc.MarkRead(ctx, conversationID, s.viewer)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to mark conversation read")
		return
	}
	if count == 0 {
		return
	}

	s.mu.Lock()
	if s.active == conversationID {
		for _, msg := range s.messages {
			if msg.SenderID != s.viewer {
				msg.IsRead = true
			}
		}
	}
	s.mu.Unlock()
}

// refreshSummaries reloads the conversation list. A failed fetch degrades to
// an empty list.
func (s *Session) refreshSummaries(ctx context.Context) {
	summaries, err := s.svc.ListForUser(ctx, s.viewer)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load conversations")
		summaries = []*models.ConversationSummary{}
	}

	s.mu.Lock()
	s.summaries = summaries
	s.mu.Unlock()
	s.changed()
}

func (s *Session) requireOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionClosed
	case !s.open:
		return ErrSessionNotOpen
	}
	return nil
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func matchesQuery(profile *models.Profile, query string) bool {
	if profile == nil {
		return false
	}
	return strings.Contains(strings.ToLower(profile.Username), query) ||
		strings.Contains(strings.ToLower(profile.DisplayName), query)
}
