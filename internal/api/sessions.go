package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamlens/streamlens/internal/export"
	"github.com/streamlens/streamlens/internal/gateway"
	"github.com/streamlens/streamlens/internal/observability"
	"github.com/streamlens/streamlens/internal/registry"
	"github.com/streamlens/streamlens/internal/results"
)

var ErrSessionNotFound = errors.New("session not found")

// Session wraps one live results manager. The run goroutine is owned here;
// the manager itself never spawns goroutines.
type Session struct {
	ID      string
	manager *results.Manager
	cancel  context.CancelFunc
	done    chan struct{}

	createdBy string
	createdAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastAccess = at
	s.mu.Unlock()
}

func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

type SessionSummary struct {
	ID            string                 `json:"id"`
	StatementName string                 `json:"statement_name"`
	Environment   string                 `json:"environment"`
	Phase         gateway.StatementPhase `json:"phase"`
	Rows          int                    `json:"rows"`
	Truncated     bool                   `json:"truncated"`
	CreatedBy     string                 `json:"created_by,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

type SessionServiceOptions struct {
	Fetcher            results.PageFetcher
	Loader             results.ResourceLoader
	Repo               registry.Repository
	Exporter           *export.Exporter
	Engine             results.Config
	DefaultEnvironment string
	DefaultComputePool string
	Logger             *slog.Logger
	Clock              func() time.Time
}

// SessionService owns the set of live watch sessions. Creating a session
// starts the manager's run loop; the session stays addressable after the run
// ends so callers can keep paging the captured buffer until the session is
// deleted or evicted.
type SessionService struct {
	opts SessionServiceOptions

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("resource loader is required")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &SessionService{
		opts:     opts,
		sessions: map[string]*Session{},
	}, nil
}

type CreateSessionInput struct {
	StatementName string
	Environment   string
	ComputePool   string
	CreatedBy     string
}

func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (SessionSummary, error) {
	if in.StatementName == "" {
		return SessionSummary{}, fmt.Errorf("statement name is required")
	}
	environment := in.Environment
	if environment == "" {
		environment = s.opts.DefaultEnvironment
	}
	computePool := in.ComputePool
	if computePool == "" {
		computePool = s.opts.DefaultComputePool
	}

	handle := gateway.StatementHandle{
		Name:        in.StatementName,
		Environment: environment,
		ComputePool: computePool,
	}
	id := newSessionID()

	notify := func(event results.Event) {
		if s.opts.Logger == nil {
			return
		}
		s.opts.Logger.Debug("session event",
			slog.String("session_id", id),
			slog.String("statement", handle.Name),
			slog.String("reason", string(event.Reason)),
			slog.String("phase", string(event.Phase)),
			slog.Int("rows", event.Rows),
		)
	}

	manager, err := results.NewManager(handle, s.opts.Fetcher, s.opts.Loader, s.opts.Engine, s.opts.Logger, notify)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("create session manager: %w", err)
	}

	if s.opts.Repo != nil {
		if _, err := s.opts.Repo.CreateWatch(ctx, registry.CreateWatchInput{
			WatchID:       id,
			StatementName: handle.Name,
			Environment:   handle.Environment,
			ComputePool:   handle.ComputePool,
			CreatedBy:     in.CreatedBy,
		}); err != nil {
			return SessionSummary{}, fmt.Errorf("record watch: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	now := s.opts.Clock()
	session := &Session{
		ID:         id,
		manager:    manager,
		cancel:     cancel,
		done:       make(chan struct{}),
		createdBy:  in.CreatedBy,
		createdAt:  now,
		lastAccess: now,
	}

	s.mu.Lock()
	s.sessions[id] = session
	count := len(s.sessions)
	s.mu.Unlock()
	observability.SetActiveSessions(count)

	go s.run(runCtx, session)

	return s.summarize(session), nil
}

func (s *SessionService) run(ctx context.Context, session *Session) {
	defer close(session.done)

	err := session.manager.Run(ctx)
	if err != nil && s.opts.Logger != nil {
		s.opts.Logger.Error("session run failed",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}

	if s.opts.Repo == nil {
		return
	}
	lastError := ""
	if lastErr := session.manager.LastError(); lastErr != nil {
		lastError = lastErr.Error()
	}
	completeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.Repo.CompleteWatch(completeCtx, registry.CompleteWatchInput{
		WatchID:   session.ID,
		Phase:     string(session.manager.Phase()),
		RowCount:  int64(session.manager.Count()),
		Truncated: session.manager.Truncated(),
		LastError: lastError,
	}); err != nil && s.opts.Logger != nil {
		s.opts.Logger.Warn("complete watch record failed",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
}

func (s *SessionService) get(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Message dispatches one protocol message to a session's manager.
func (s *SessionService) Message(ctx context.Context, id string, msg results.Message) (any, error) {
	session, err := s.get(id)
	if err != nil {
		return nil, err
	}
	session.touch(s.opts.Clock())
	return session.manager.HandleMessage(ctx, msg)
}

func (s *SessionService) Get(id string) (SessionSummary, error) {
	session, err := s.get(id)
	if err != nil {
		return SessionSummary{}, err
	}
	return s.summarize(session), nil
}

func (s *SessionService) List() []SessionSummary {
	s.mu.RLock()
	summaries := make([]SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		summaries = append(summaries, s.summarize(session))
	}
	s.mu.RUnlock()

	// Newest first, with the ID as a tie-break so listings are stable for
	// sessions created within the same clock tick.
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Delete cancels the session's run loop and forgets the session.
func (s *SessionService) Delete(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	count := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.cancel()
	<-session.done
	observability.SetActiveSessions(count)
	return nil
}

// Export writes the session's current buffer snapshot to the object store.
func (s *SessionService) Export(ctx context.Context, id string) (registry.Export, error) {
	if s.opts.Exporter == nil {
		return registry.Export{}, fmt.Errorf("export is not configured")
	}
	session, err := s.get(id)
	if err != nil {
		return registry.Export{}, err
	}
	session.touch(s.opts.Clock())

	handle := session.manager.Handle()
	return s.opts.Exporter.Export(ctx, export.Input{
		WatchID:       session.ID,
		StatementName: handle.Name,
		Environment:   handle.Environment,
		Rows:          session.manager.Snapshot(),
	})
}

// EvictIdleBefore deletes sessions whose last access is older than the
// cutoff. It returns the evicted session IDs.
func (s *SessionService) EvictIdleBefore(cutoff time.Time) []string {
	s.mu.RLock()
	stale := make([]string, 0)
	for id, session := range s.sessions {
		if session.LastAccess().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	evicted := make([]string, 0, len(stale))
	for _, id := range stale {
		if err := s.Delete(id); err == nil {
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (s *SessionService) summarize(session *Session) SessionSummary {
	handle := session.manager.Handle()
	return SessionSummary{
		ID:            session.ID,
		StatementName: handle.Name,
		Environment:   handle.Environment,
		Phase:         session.manager.Phase(),
		Rows:          session.manager.Count(),
		Truncated:     session.manager.Truncated(),
		CreatedBy:     session.createdBy,
		CreatedAt:     session.createdAt,
	}
}

func newSessionID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(buf)
}
