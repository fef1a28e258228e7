package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowchat/internal/answer"
	"knowchat/internal/model"
	"knowchat/internal/repository"
	"knowchat/internal/scope"
)

func TestEnsureThreadLazyCreate(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, notifier := newThreadEnv(t, db, nil)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)
	assert.NotZero(t, thread.ID)
	assert.Equal(t, model.ScopePersonal, thread.ScopeType)
	assert.NotEmpty(t, notifier.topics)

	// an existing id resolves to the same thread instead of creating another
	again, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, again.ID)

	threads, err := service.ListThreads(member.ID, scope.NewPersonal())
	require.NoError(t, err)
	assert.Len(t, threads, 1)
}

func TestEnsureThreadRejectsForeignThread(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	alice := seedMember(t, db, company.ID, "alice")
	bob := seedMember(t, db, company.ID, "bob")
	service, _, _ := newThreadEnv(t, db, nil)

	thread, err := service.CreateThread(context.Background(), alice.ID, scope.NewPersonal())
	require.NoError(t, err)

	_, err = service.EnsureThread(context.Background(), bob.ID, scope.NewPersonal(), thread.ID)
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestCreateThreadTeamCarriesTeamName(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	owner := seedMember(t, db, company.ID, "owner")
	outsider := seedMember(t, db, company.ID, "outsider")
	team := seedTeam(t, db, company.ID, owner.ID)
	service, _, _ := newThreadEnv(t, db, nil)

	thread, err := service.CreateThread(context.Background(), owner.ID, scope.NewTeam(team.ID))
	require.NoError(t, err)
	assert.Equal(t, model.ScopeTeam, thread.ScopeType)
	assert.Equal(t, team.ID, thread.TeamID)
	assert.Equal(t, team.Name, thread.TeamName)

	_, err = service.CreateThread(context.Background(), outsider.ID, scope.NewTeam(team.ID))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = service.CreateThread(context.Background(), owner.ID, scope.NewTeam(9999))
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestCreateThreadAlwaysMakesNewThread(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, _ := newThreadEnv(t, db, nil)

	first, err := service.CreateThread(context.Background(), member.ID, scope.NewPersonal())
	require.NoError(t, err)
	second, err := service.CreateThread(context.Background(), member.ID, scope.NewPersonal())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAskWithoutSources(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, publisher, _ := newThreadEnv(t, db, nil)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	result, err := service.Ask(context.Background(), AskInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		ThreadID: thread.ID,
		Question: "資料はありますか",
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, model.RoleUser, result.Messages[0].Role)
	assert.Equal(t, "資料はありますか", result.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, result.Messages[1].Role)
	assert.Equal(t, answer.NoSourcesMessage, result.Messages[1].Content)

	// both messages went through the async persist queue
	require.Len(t, publisher.published, 2)
	assert.Equal(t, thread.ID, publisher.published[0].ThreadID)
}

func TestAskAnswersFromSources(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, _ := newThreadEnv(t, db, nil)
	knowledge, _, _ := newKnowledgeEnv(t, db)

	_, err := knowledge.AddText(context.Background(), AddTextInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		Name:     "pricing",
		Text:     "スタンダード 2,980円/月 でご利用いただけます",
	})
	require.NoError(t, err)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	result, err := service.Ask(context.Background(), AskInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		ThreadID: thread.ID,
		Question: "月額料金を教えて",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Messages[1].Content, answer.PriceBlockHeader)
	assert.Contains(t, result.Messages[1].Content, "2,980円/月")
}

func TestAskValidation(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, _ := newThreadEnv(t, db, nil)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	_, err = service.Ask(context.Background(), AskInput{MemberID: member.ID, Scope: scope.NewPersonal(), ThreadID: thread.ID, Question: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = service.Ask(context.Background(), AskInput{MemberID: member.ID, Scope: scope.NewPersonal(), ThreadID: 9999, Question: "q"})
	assert.ErrorIs(t, err, ErrThreadNotFound)

	_, err = service.Ask(context.Background(), AskInput{
		MemberID:         member.ID,
		Scope:            scope.NewPersonal(),
		ThreadID:         thread.ID,
		Question:         "q",
		SelectedSourceID: 12345,
	})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestAskSerializedPerThread(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, _ := newThreadEnv(t, db, nil)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	service.inflight.Store(thread.ID, struct{}{})
	_, err = service.Ask(context.Background(), AskInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		ThreadID: thread.ID,
		Question: "q",
	})
	assert.ErrorIs(t, err, ErrAskInFlight)

	// a different thread is not blocked
	other, err := service.CreateThread(context.Background(), member.ID, scope.NewPersonal())
	require.NoError(t, err)
	_, err = service.Ask(context.Background(), AskInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		ThreadID: other.ID,
		Question: "q",
	})
	assert.NoError(t, err)

	// the guard is released once the blocked thread's marker is gone
	service.inflight.Delete(thread.ID)
	_, err = service.Ask(context.Background(), AskInput{
		MemberID: member.ID,
		Scope:    scope.NewPersonal(),
		ThreadID: thread.ID,
		Question: "q",
	})
	assert.NoError(t, err)
}

func TestHistoryReadsThroughCache(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	history := newFakeHistoryCache()
	service, _, _ := newThreadEnv(t, db, history)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	messageRepo := repository.NewMessageRepository(db)
	for _, content := range []string{"first", "second"} {
		require.NoError(t, messageRepo.Create(&model.Message{
			ThreadID: thread.ID,
			MemberID: member.ID,
			Role:     model.RoleUser,
			Content:  content,
		}))
	}

	messages, err := service.History(context.Background(), member.ID, scope.NewPersonal(), thread.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, 1, history.setCalls, "a clean miss populates the cache")

	again, err := service.History(context.Background(), member.ID, scope.NewPersonal(), thread.ID, 0)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 1, history.setCalls, "second read is served from the cache")
}

func TestHistoryDirtyBypassesCache(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	history := newFakeHistoryCache()
	service, _, _ := newThreadEnv(t, db, history)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)
	require.NoError(t, history.SetHistory(context.Background(), thread.ID, []model.Message{{Content: "stale"}}))
	require.NoError(t, history.MarkDirty(context.Background(), thread.ID))

	messages, err := service.History(context.Background(), member.ID, scope.NewPersonal(), thread.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages, "dirty cache is skipped in favor of the database")
}

func TestHistoryLimit(t *testing.T) {
	db := newTestDB(t)
	company := seedCompany(t, db, 5)
	member := seedMember(t, db, company.ID, "alice")
	service, _, _ := newThreadEnv(t, db, nil)

	thread, err := service.EnsureThread(context.Background(), member.ID, scope.NewPersonal(), 0)
	require.NoError(t, err)

	messageRepo := repository.NewMessageRepository(db)
	for _, content := range []string{"a", "b", "c"} {
		require.NoError(t, messageRepo.Create(&model.Message{
			ThreadID: thread.ID,
			MemberID: member.ID,
			Role:     model.RoleUser,
			Content:  content,
		}))
	}

	messages, err := service.History(context.Background(), member.ID, scope.NewPersonal(), thread.ID, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "b", messages[0].Content)
	assert.Equal(t, "c", messages[1].Content)
}
