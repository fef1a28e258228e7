package app

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"knowchat/internal/analysis"
	"knowchat/internal/extract"
	"knowchat/internal/model"
	"knowchat/internal/pkg/textnorm"
	"knowchat/internal/repository"
	"knowchat/internal/scope"
	"knowchat/internal/storage"
	"knowchat/internal/watch"
)

const (
	personalSourceLimit = 20
	teamSourceLimit     = 50
)

// ChangeNotifier publishes change events for live snapshot subscribers.
type ChangeNotifier interface {
	Notify(ctx context.Context, topic string) error
}

// KnowledgeService manages the source lifecycle across personal and team
// scopes: ingestion, listing, team inheritance, and deletion.
type KnowledgeService struct {
	sourceRepo *repository.SourceRepository
	threadRepo *repository.ThreadRepository
	teamRepo   *repository.TeamRepository
	blobs      storage.BlobStore
	pipeline   *analysis.Pipeline
	notifier   ChangeNotifier
}

func NewKnowledgeService(
	sourceRepo *repository.SourceRepository,
	threadRepo *repository.ThreadRepository,
	teamRepo *repository.TeamRepository,
	blobs storage.BlobStore,
	pipeline *analysis.Pipeline,
	notifier ChangeNotifier,
) *KnowledgeService {
	return &KnowledgeService{
		sourceRepo: sourceRepo,
		threadRepo: threadRepo,
		teamRepo:   teamRepo,
		blobs:      blobs,
		pipeline:   pipeline,
		notifier:   notifier,
	}
}

type AddPDFInput struct {
	MemberID uint
	Scope    scope.Scope
	ThreadID uint // required for team scope, ignored for personal
	Filename string
	Data     []byte
	Progress storage.ProgressFunc
}

// AddPDF uploads the blob, extracts and analyzes the text, and persists the
// source. A blob uploaded before a later failure is left in place (known
// gap, logged).
func (s *KnowledgeService) AddPDF(ctx context.Context, input AddPDFInput) (*model.Source, error) {
	if input.MemberID == 0 || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	thread, err := s.resolveThread(input.MemberID, input.Scope, input.ThreadID)
	if err != nil {
		return nil, err
	}

	var blobPath string
	if input.Scope.IsTeam() {
		blobPath = storage.ThreadDocumentPath(input.MemberID, thread.ID, input.Filename)
	} else {
		blobPath = storage.PersonalDocumentPath(input.MemberID, input.Filename)
	}
	if err := s.blobs.Put(ctx, blobPath, bytes.NewReader(input.Data), int64(len(input.Data)), input.Progress); err != nil {
		return nil, fmt.Errorf("upload blob failed: %w", err)
	}

	result, err := extract.PDF(input.Filename, bytes.NewReader(input.Data))
	if err != nil {
		log.Printf("knowledge: pdf extraction failed after upload, blob %s kept: %v", blobPath, err)
		return nil, err
	}

	return s.createSource(ctx, input.MemberID, input.Scope, thread, result.Title, result.Text, blobPath, model.SourceTypePDF)
}

type AddTextInput struct {
	MemberID uint
	Scope    scope.Scope
	ThreadID uint
	Name     string
	Text     string
}

// AddText persists pasted or file-extracted text as a source. Text sources
// carry no blob. The text is normalized here so raw pasted input ends up in
// the same shape as extractor output.
func (s *KnowledgeService) AddText(ctx context.Context, input AddTextInput) (*model.Source, error) {
	if input.MemberID == 0 {
		return nil, ErrInvalidInput
	}
	text := textnorm.Normalize(input.Text)
	if text == "" {
		return nil, ErrInvalidInput
	}
	thread, err := s.resolveThread(input.MemberID, input.Scope, input.ThreadID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Untitled"
	}
	return s.createSource(ctx, input.MemberID, input.Scope, thread, name, text, "", model.SourceTypeText)
}

type AddURLInput struct {
	MemberID uint
	Scope    scope.Scope
	ThreadID uint
	URL      string
}

func (s *KnowledgeService) AddURL(ctx context.Context, input AddURLInput) (*model.Source, error) {
	if input.MemberID == 0 || strings.TrimSpace(input.URL) == "" {
		return nil, ErrInvalidInput
	}
	thread, err := s.resolveThread(input.MemberID, input.Scope, input.ThreadID)
	if err != nil {
		return nil, err
	}

	result, err := extract.URL(ctx, input.URL)
	if err != nil {
		return nil, err
	}
	return s.createSource(ctx, input.MemberID, input.Scope, thread, result.Title, result.Text, "", model.SourceTypeURL)
}

// ListSources returns the scope's source collection, newest first, capped at
// 20 for personal and 50 for a team thread.
func (s *KnowledgeService) ListSources(memberID uint, sc scope.Scope, threadID uint) ([]model.Source, error) {
	if memberID == 0 {
		return nil, ErrInvalidInput
	}
	thread, err := s.resolveThread(memberID, sc, threadID)
	if err != nil {
		return nil, err
	}
	if sc.IsTeam() {
		return s.sourceRepo.ListByThread(thread.ID, teamSourceLimit)
	}
	return s.sourceRepo.ListPersonal(memberID, personalSourceLimit)
}

// InheritIntoThread deep-copies the selected personal sources into a team
// thread's collection at a point in time. The copies reference the original
// by id but never own its blob.
func (s *KnowledgeService) InheritIntoThread(ctx context.Context, memberID uint, sourceIDs []uint, threadID uint) ([]model.Source, error) {
	if memberID == 0 || threadID == 0 {
		return nil, ErrInvalidInput
	}
	thread, err := s.threadRepo.GetByID(threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil || thread.ScopeType != model.ScopeTeam {
		return nil, ErrThreadNotFound
	}
	if err := s.requireTeamMembership(thread.TeamID, memberID); err != nil {
		return nil, err
	}

	copies := make([]model.Source, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		original, err := s.sourceRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if original == nil || original.MemberID != memberID || original.ThreadID != 0 {
			return nil, fmt.Errorf("%w: source %d is not in your personal collection", ErrSourceNotFound, id)
		}
		cp := model.Source{
			MemberID:        memberID,
			ThreadID:        thread.ID,
			Name:            original.Name,
			Text:            original.Text,
			Summary:         original.Summary,
			Plans:           original.Plans,
			StoragePath:     original.StoragePath,
			SourceType:      original.SourceType,
			InheritedFromID: original.ID,
		}
		if err := s.sourceRepo.Create(&cp); err != nil {
			return nil, err
		}
		copies = append(copies, cp)
	}

	if len(copies) > 0 {
		if err := s.threadRepo.Touch(thread.ID); err != nil {
			log.Printf("knowledge: touch thread %d failed: %v", thread.ID, err)
		}
		s.notify(ctx, watch.SourceTopic(memberID, scope.NewTeam(thread.TeamID), thread.ID))
	}
	return copies, nil
}

// DeleteSource removes the record and, when the blob is owned by this copy,
// the blob too. Inherited team copies never delete the original owner's
// blob; blob-delete failures are logged, never surfaced.
func (s *KnowledgeService) DeleteSource(ctx context.Context, memberID, sourceID uint) error {
	if memberID == 0 || sourceID == 0 {
		return ErrInvalidInput
	}
	source, err := s.sourceRepo.GetByID(sourceID)
	if err != nil {
		return err
	}
	if source == nil {
		return ErrSourceNotFound
	}

	var topic string
	if source.ThreadID == 0 {
		if source.MemberID != memberID {
			return ErrSourceNotFound
		}
		topic = watch.SourceTopic(memberID, scope.NewPersonal(), 0)
	} else {
		thread, err := s.threadRepo.GetByID(source.ThreadID)
		if err != nil {
			return err
		}
		if thread == nil {
			return ErrThreadNotFound
		}
		if err := s.requireTeamMembership(thread.TeamID, memberID); err != nil {
			return err
		}
		topic = watch.SourceTopic(memberID, scope.NewTeam(thread.TeamID), thread.ID)
	}

	if err := s.sourceRepo.Delete(source.ID); err != nil {
		return err
	}

	if source.StoragePath != "" && (source.ThreadID == 0 || source.InheritedFromID == 0) {
		if err := s.blobs.Delete(ctx, source.StoragePath); err != nil {
			log.Printf("knowledge: delete blob %s failed: %v", source.StoragePath, err)
		}
	}

	s.notify(ctx, topic)
	return nil
}

func (s *KnowledgeService) createSource(
	ctx context.Context,
	memberID uint,
	sc scope.Scope,
	thread *model.Thread,
	name, text, blobPath, sourceType string,
) (*model.Source, error) {
	result := s.pipeline.Analyze(ctx, name, text)

	source := &model.Source{
		MemberID:    memberID,
		Name:        name,
		Text:        text,
		Summary:     result.Summary,
		StoragePath: blobPath,
		SourceType:  sourceType,
	}
	source.SetPricingPlans(result.Plans)
	if sc.IsTeam() {
		source.ThreadID = thread.ID
	}

	if err := s.sourceRepo.Create(source); err != nil {
		return nil, err
	}
	if sc.IsTeam() {
		if err := s.threadRepo.Touch(thread.ID); err != nil {
			log.Printf("knowledge: touch thread %d failed: %v", thread.ID, err)
		}
		s.notify(ctx, watch.SourceTopic(memberID, sc, thread.ID))
	} else {
		s.notify(ctx, watch.SourceTopic(memberID, sc, 0))
	}
	return source, nil
}

// resolveThread validates the scope and, for team scope, loads the target
// thread and checks team membership. Personal scope returns a nil thread:
// all personal threads share the one global collection.
func (s *KnowledgeService) resolveThread(memberID uint, sc scope.Scope, threadID uint) (*model.Thread, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !sc.IsTeam() {
		return nil, nil
	}
	if threadID == 0 {
		return nil, fmt.Errorf("%w: team scope requires a thread", ErrInvalidInput)
	}
	thread, err := s.threadRepo.GetByID(threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil || thread.ScopeType != model.ScopeTeam || thread.TeamID != sc.TeamID {
		return nil, ErrThreadNotFound
	}
	if err := s.requireTeamMembership(sc.TeamID, memberID); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *KnowledgeService) requireTeamMembership(teamID, memberID uint) error {
	isMember, err := s.teamRepo.IsMember(teamID, memberID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrForbidden
	}
	return nil
}

func (s *KnowledgeService) notify(ctx context.Context, topic string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, topic); err != nil {
		log.Printf("knowledge: notify %s failed: %v", topic, err)
	}
}
