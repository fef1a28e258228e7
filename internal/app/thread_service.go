package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"knowchat/internal/answer"
	"knowchat/internal/model"
	"knowchat/internal/repository"
	"knowchat/internal/scope"
	"knowchat/internal/watch"
)

// AsyncMessagePublisher hands chat messages to the persist queue.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// HistoryCache is the short-TTL message history cache.
type HistoryCache interface {
	GetHistory(ctx context.Context, threadID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, threadID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, threadID uint) error
	MarkDirty(ctx context.Context, threadID uint) error
	IsDirty(ctx context.Context, threadID uint) (bool, error)
}

// ThreadService manages threads and their messages: lazy creation on first
// write, explicit new-chat creation, and the ask flow.
type ThreadService struct {
	threadRepo  *repository.ThreadRepository
	teamRepo    *repository.TeamRepository
	messageRepo *repository.MessageRepository
	sourceRepo  *repository.SourceRepository
	publisher   AsyncMessagePublisher
	history     HistoryCache
	engine      *answer.Engine
	notifier    ChangeNotifier

	// inflight serializes asks per thread; concurrent asks on one thread
	// would interleave assistant replies out of question order.
	inflight sync.Map
}

func NewThreadService(
	threadRepo *repository.ThreadRepository,
	teamRepo *repository.TeamRepository,
	messageRepo *repository.MessageRepository,
	sourceRepo *repository.SourceRepository,
	publisher AsyncMessagePublisher,
	history HistoryCache,
	engine *answer.Engine,
	notifier ChangeNotifier,
) *ThreadService {
	return &ThreadService{
		threadRepo:  threadRepo,
		teamRepo:    teamRepo,
		messageRepo: messageRepo,
		sourceRepo:  sourceRepo,
		publisher:   publisher,
		history:     history,
		engine:      engine,
		notifier:    notifier,
	}
}

// EnsureThread returns the thread when a valid id is given, and lazily
// creates one otherwise (the first-write rule).
func (s *ThreadService) EnsureThread(ctx context.Context, memberID uint, sc scope.Scope, threadID uint) (*model.Thread, error) {
	if memberID == 0 {
		return nil, ErrInvalidInput
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if threadID != 0 {
		thread, err := s.threadRepo.GetByID(threadID)
		if err != nil {
			return nil, err
		}
		if thread == nil {
			return nil, ErrThreadNotFound
		}
		if err := s.checkThreadAccess(thread, memberID, sc); err != nil {
			return nil, err
		}
		return thread, nil
	}
	return s.createThread(ctx, memberID, sc)
}

// CreateThread is the explicit new-chat action: it always creates a fresh
// thread, bypassing the lazy-create-if-none rule.
func (s *ThreadService) CreateThread(ctx context.Context, memberID uint, sc scope.Scope) (*model.Thread, error) {
	if memberID == 0 {
		return nil, ErrInvalidInput
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.createThread(ctx, memberID, sc)
}

func (s *ThreadService) createThread(ctx context.Context, memberID uint, sc scope.Scope) (*model.Thread, error) {
	thread := &model.Thread{
		MemberID:  memberID,
		ScopeType: model.ScopePersonal,
	}
	if sc.IsTeam() {
		team, err := s.teamRepo.GetByID(sc.TeamID)
		if err != nil {
			return nil, err
		}
		if team == nil {
			return nil, ErrTeamNotFound
		}
		if err := s.requireTeamMembership(sc.TeamID, memberID); err != nil {
			return nil, err
		}
		thread.ScopeType = model.ScopeTeam
		thread.TeamID = team.ID
		thread.TeamName = team.Name
	}
	if err := s.threadRepo.Create(thread); err != nil {
		return nil, err
	}
	s.notify(ctx, watch.ThreadTopic(memberID, sc))
	return thread, nil
}

func (s *ThreadService) ListThreads(memberID uint, sc scope.Scope) ([]model.Thread, error) {
	if memberID == 0 {
		return nil, ErrInvalidInput
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if sc.IsTeam() {
		if err := s.requireTeamMembership(sc.TeamID, memberID); err != nil {
			return nil, err
		}
		return s.threadRepo.ListByTeam(sc.TeamID)
	}
	return s.threadRepo.ListPersonal(memberID)
}

type AskInput struct {
	MemberID         uint
	Scope            scope.Scope
	ThreadID         uint // already ensured by the caller
	Question         string
	SelectedSourceID uint // 0 = answer over all sources in scope
}

type AskResult struct {
	Messages []model.Message `json:"messages"`
}

// Ask runs the answer pipeline for one question: persist the user message,
// answer against the scope's sources, persist the assistant message. Asks
// are serialized per thread.
func (s *ThreadService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	if input.MemberID == 0 || input.ThreadID == 0 {
		return nil, ErrInvalidInput
	}
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, ErrMessageEmpty
	}

	if _, busy := s.inflight.LoadOrStore(input.ThreadID, struct{}{}); busy {
		return nil, ErrAskInFlight
	}
	defer s.inflight.Delete(input.ThreadID)

	thread, err := s.threadRepo.GetByID(input.ThreadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrThreadNotFound
	}
	if err := s.checkThreadAccess(thread, input.MemberID, input.Scope); err != nil {
		return nil, err
	}

	candidates, err := s.candidateSources(input.MemberID, input.Scope, thread)
	if err != nil {
		return nil, err
	}

	var selected *model.Source
	if input.SelectedSourceID != 0 {
		for i := range candidates {
			if candidates[i].ID == input.SelectedSourceID {
				selected = &candidates[i]
				break
			}
		}
		if selected == nil {
			return nil, ErrSourceNotFound
		}
	}

	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}
	if s.history != nil {
		_ = s.history.MarkDirty(ctx, thread.ID)
		_ = s.history.DeleteHistory(ctx, thread.ID)
	}

	userMessage := model.Message{
		ThreadID:  thread.ID,
		MemberID:  input.MemberID,
		Role:      model.RoleUser,
		Content:   question,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	reply := s.engine.Answer(ctx, question, selected, candidates)

	assistantMessage := model.Message{
		ThreadID:  thread.ID,
		MemberID:  input.MemberID,
		Role:      model.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	if err := s.threadRepo.Touch(thread.ID); err != nil {
		log.Printf("thread: touch thread %d failed: %v", thread.ID, err)
	}
	s.notify(ctx, watch.MessageTopic(thread.ID))
	s.notify(ctx, watch.ThreadTopic(input.MemberID, input.Scope))

	return &AskResult{Messages: []model.Message{userMessage, assistantMessage}}, nil
}

// History returns the thread's messages oldest first, served from the cache
// when it is warm and clean.
func (s *ThreadService) History(ctx context.Context, memberID uint, sc scope.Scope, threadID uint, limit int) ([]model.Message, error) {
	if memberID == 0 || threadID == 0 {
		return nil, ErrInvalidInput
	}
	thread, err := s.threadRepo.GetByID(threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrThreadNotFound
	}
	if err := s.checkThreadAccess(thread, memberID, sc); err != nil {
		return nil, err
	}

	if s.history != nil {
		dirty, err := s.history.IsDirty(ctx, threadID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.history.GetHistory(ctx, threadID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByThreadID(threadID, limit)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		if dirty, dirtyErr := s.history.IsDirty(ctx, threadID); dirtyErr == nil && !dirty {
			_ = s.history.SetHistory(ctx, threadID, messages)
		}
	}
	return messages, nil
}

func (s *ThreadService) candidateSources(memberID uint, sc scope.Scope, thread *model.Thread) ([]model.Source, error) {
	if sc.IsTeam() {
		return s.sourceRepo.ListByThread(thread.ID, teamSourceLimit)
	}
	return s.sourceRepo.ListPersonal(memberID, personalSourceLimit)
}

// checkThreadAccess enforces the scope partition: personal threads are
// owner-only; team threads require membership in the thread's team, which
// must also be the scope's team.
func (s *ThreadService) checkThreadAccess(thread *model.Thread, memberID uint, sc scope.Scope) error {
	switch thread.ScopeType {
	case model.ScopePersonal:
		if sc.IsTeam() || thread.MemberID != memberID {
			return ErrThreadNotFound
		}
		return nil
	case model.ScopeTeam:
		if !sc.IsTeam() || thread.TeamID != sc.TeamID {
			return ErrThreadNotFound
		}
		return s.requireTeamMembership(thread.TeamID, memberID)
	default:
		return ErrThreadNotFound
	}
}

func (s *ThreadService) requireTeamMembership(teamID, memberID uint) error {
	isMember, err := s.teamRepo.IsMember(teamID, memberID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrForbidden
	}
	return nil
}

func (s *ThreadService) notify(ctx context.Context, topic string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, topic); err != nil {
		log.Printf("thread: notify %s failed: %v", topic, err)
	}
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
