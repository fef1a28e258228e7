package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"knowchat/internal/ai"
	"knowchat/internal/analysis"
	"knowchat/internal/answer"
	"knowchat/internal/model"
	"knowchat/internal/repository"
	"knowchat/internal/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Company{},
		&model.Member{},
		&model.Team{},
		&model.TeamMember{},
		&model.TeamInvite{},
		&model.Thread{},
		&model.Message{},
		&model.Source{},
	))
	return db
}

func seedCompany(t *testing.T, db *gorm.DB, seatLimit int) *model.Company {
	t.Helper()
	company := &model.Company{Name: "Acme", SeatLimit: seatLimit}
	require.NoError(t, db.Create(company).Error)
	return company
}

func seedMember(t *testing.T, db *gorm.DB, companyID uint, username string) *model.Member {
	t.Helper()
	member := &model.Member{
		CompanyID:    companyID,
		Username:     username,
		Email:        username + "@example.com",
		DisplayName:  username,
		Role:         model.RoleMember,
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(member).Error)
	return member
}

func seedTeam(t *testing.T, db *gorm.DB, companyID uint, memberIDs ...uint) *model.Team {
	t.Helper()
	team := &model.Team{CompanyID: companyID, Name: "dev", CreatedBy: memberIDs[0]}
	require.NoError(t, repository.NewTeamRepository(db).CreateWithMembers(team, memberIDs))
	return team
}

func seedTeamThread(t *testing.T, db *gorm.DB, memberID uint, team *model.Team) *model.Thread {
	t.Helper()
	thread := &model.Thread{
		MemberID:  memberID,
		ScopeType: model.ScopeTeam,
		TeamID:    team.ID,
		TeamName:  team.Name,
	}
	require.NoError(t, repository.NewThreadRepository(db).Create(thread))
	return thread
}

// fakeBlobStore records puts and deletes without touching the filesystem.
type fakeBlobStore struct {
	puts    []string
	deletes []string
}

func (f *fakeBlobStore) Put(ctx context.Context, blobPath string, r io.Reader, size int64, progress storage.ProgressFunc) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.puts = append(f.puts, blobPath)
	if progress != nil {
		progress(100)
	}
	return nil
}

func (f *fakeBlobStore) Address(blobPath string) (string, error) {
	return "/blobs/" + blobPath, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, blobPath string) error {
	f.deletes = append(f.deletes, blobPath)
	return nil
}

// fakePublisher collects messages instead of enqueueing them.
type fakePublisher struct {
	published []model.Message
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeNotifier struct {
	topics []string
}

func (f *fakeNotifier) Notify(ctx context.Context, topic string) error {
	f.topics = append(f.topics, topic)
	return nil
}

// fakeHistoryCache is an in-memory stand-in for the redis history cache.
type fakeHistoryCache struct {
	entries  map[uint][]model.Message
	dirty    map[uint]bool
	getCalls int
	setCalls int
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{entries: map[uint][]model.Message{}, dirty: map[uint]bool{}}
}

func (f *fakeHistoryCache) GetHistory(ctx context.Context, threadID uint) ([]model.Message, bool, error) {
	f.getCalls++
	msgs, ok := f.entries[threadID]
	return msgs, ok, nil
}

func (f *fakeHistoryCache) SetHistory(ctx context.Context, threadID uint, messages []model.Message) error {
	f.setCalls++
	f.entries[threadID] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(ctx context.Context, threadID uint) error {
	delete(f.entries, threadID)
	return nil
}

func (f *fakeHistoryCache) MarkDirty(ctx context.Context, threadID uint) error {
	f.dirty[threadID] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(ctx context.Context, threadID uint) (bool, error) {
	return f.dirty[threadID], nil
}

func newKnowledgeEnv(t *testing.T, db *gorm.DB) (*KnowledgeService, *fakeBlobStore, *fakeNotifier) {
	t.Helper()
	blobs := &fakeBlobStore{}
	notifier := &fakeNotifier{}
	service := NewKnowledgeService(
		repository.NewSourceRepository(db),
		repository.NewThreadRepository(db),
		repository.NewTeamRepository(db),
		blobs,
		analysis.NewPipeline(nil, ai.ChatConfig{}),
		notifier,
	)
	return service, blobs, notifier
}

func newThreadEnv(t *testing.T, db *gorm.DB, history HistoryCache) (*ThreadService, *fakePublisher, *fakeNotifier) {
	t.Helper()
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	service := NewThreadService(
		repository.NewThreadRepository(db),
		repository.NewTeamRepository(db),
		repository.NewMessageRepository(db),
		repository.NewSourceRepository(db),
		publisher,
		history,
		answer.NewEngine(nil, ai.ChatConfig{}),
		notifier,
	)
	return service, publisher, notifier
}

func newAuthEnv(db *gorm.DB) *AuthService {
	return NewAuthService(
		repository.NewMemberRepository(db),
		repository.NewCompanyRepository(db),
		repository.NewTeamRepository(db),
		"test-secret",
		time.Hour,
	)
}
