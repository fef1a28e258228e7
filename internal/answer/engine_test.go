package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"knowchat/internal/ai"
	"knowchat/internal/model"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	s.calls++
	return s.reply, s.err
}

func localEngine() *Engine {
	// unconfigured cfg forces the local tiers
	return NewEngine(nil, ai.ChatConfig{})
}

func remoteEngine(c Completer) *Engine {
	return NewEngine(c, ai.ChatConfig{BaseURL: "https://llm.example.com/v1", APIKey: "k", Model: "m"})
}

func planSource(name string, plans []model.PricingPlan) model.Source {
	s := model.Source{Name: name}
	s.SetPricingPlans(plans)
	return s
}

func intPtr(v int) *int { return &v }

func TestAnswerNoSources(t *testing.T) {
	reply := localEngine().Answer(context.Background(), "料金は？", nil, nil)
	assert.Equal(t, NoSourcesMessage, reply)
}

func TestAnswerPriceIntentStructuredPlans(t *testing.T) {
	candidates := []model.Source{
		planSource("pricing", []model.PricingPlan{
			{Name: "Basic", PriceMonthlyYen: intPtr(1000)},
			{Name: "Enterprise"},
		}),
	}

	reply := localEngine().Answer(context.Background(), "料金を教えて", nil, candidates)
	assert.Contains(t, reply, PriceBlockHeader)
	assert.Contains(t, reply, "Basic: 1,000円/月")
	assert.Contains(t, reply, "Enterprise: 価格不明")
}

func TestAnswerPriceIntentTextScanFallback(t *testing.T) {
	candidates := []model.Source{
		{Name: "doc", Text: "ライトは980円/月、スタンダードは2,980円/月です。重複 980円/月"},
	}

	reply := localEngine().Answer(context.Background(), "月額はいくら？", nil, candidates)
	assert.Contains(t, reply, PriceBlockHeader)
	assert.Contains(t, reply, "980円/月")
	assert.Contains(t, reply, "2,980円/月")
	// the duplicate hit appears once
	assert.Equal(t, 1, countOccurrences(reply, "\n980円/月"))
}

func TestAnswerPriceIntentPrefersStructuredOverText(t *testing.T) {
	candidates := []model.Source{
		planSource("pricing", []model.PricingPlan{{Name: "Pro", PriceMonthlyYen: intPtr(5000)}}),
	}
	candidates[0].Text = "古い記載: 300円/月"

	reply := localEngine().Answer(context.Background(), "プランの価格は", nil, candidates)
	assert.Contains(t, reply, "Pro: 5,000円/月")
	assert.NotContains(t, reply, "300円/月")
}

func TestAnswerPriceIntentWithoutPricesFallsThrough(t *testing.T) {
	candidates := []model.Source{
		{Name: "guide", Text: "congratulations on your pricing research", Summary: "案内"},
	}

	reply := localEngine().Answer(context.Background(), "料金 pricing", nil, candidates)
	// no structured plans and no 円/月 text: falls to the overlap tier
	assert.NotContains(t, reply, PriceBlockHeader)
	assert.Contains(t, reply, "「guide」を参照")
}

func TestAnswerOverlapPicksBestCandidate(t *testing.T) {
	candidates := []model.Source{
		{Name: "unrelated", Text: "nothing relevant here"},
		{Name: "deploy-guide", Text: "deployment checklist and rollback steps"},
	}

	reply := localEngine().Answer(context.Background(), "deployment rollback", nil, candidates)
	assert.Contains(t, reply, "「deploy-guide」を参照")
	assert.Contains(t, reply, "deployment")
}

func TestAnswerOverlapTieKeepsEarlierCandidate(t *testing.T) {
	candidates := []model.Source{
		{Name: "first", Text: "shared keyword body"},
		{Name: "second", Text: "shared keyword body"},
	}

	reply := localEngine().Answer(context.Background(), "keyword", nil, candidates)
	assert.Contains(t, reply, "「first」を参照")
}

func TestAnswerOverlapZeroScoreUsesSummary(t *testing.T) {
	candidates := []model.Source{
		{Name: "intro", Text: "completely unrelated body", Summary: "社内ツールの紹介資料"},
	}

	reply := localEngine().Answer(context.Background(), "zzz qqq", nil, candidates)
	assert.Equal(t, "intro の概要: 社内ツールの紹介資料", reply)
}

func TestAnswerNoUsableText(t *testing.T) {
	candidates := []model.Source{
		{Name: "empty-a", Text: "   "},
		{Name: "empty-b"},
	}

	reply := localEngine().Answer(context.Background(), "anything", nil, candidates)
	assert.Equal(t, NoUsableTextMessage, reply)
}

func TestAnswerRemoteReplyWins(t *testing.T) {
	completer := &stubCompleter{reply: "リモートモデルの回答です。"}
	candidates := []model.Source{{Name: "doc", Text: "some body"}}

	reply := remoteEngine(completer).Answer(context.Background(), "質問", nil, candidates)
	assert.Equal(t, "リモートモデルの回答です。", reply)
	assert.Equal(t, 1, completer.calls)
}

func TestAnswerRemoteFailureDegradesLocally(t *testing.T) {
	completer := &stubCompleter{err: errors.New("gateway timeout")}
	candidates := []model.Source{
		planSource("pricing", []model.PricingPlan{{Name: "Basic", PriceMonthlyYen: intPtr(1000)}}),
	}

	reply := remoteEngine(completer).Answer(context.Background(), "料金は？", nil, candidates)
	assert.Contains(t, reply, PriceBlockHeader)
	assert.Contains(t, reply, "Basic: 1,000円/月")
}

func TestFormatYen(t *testing.T) {
	assert.Equal(t, "0", formatYen(0))
	assert.Equal(t, "980", formatYen(980))
	assert.Equal(t, "1,000", formatYen(1000))
	assert.Equal(t, "12,345,678", formatYen(12345678))
}

func TestQuestionTokens(t *testing.T) {
	tokens := questionTokens("How   does a deployment work?")
	assert.Equal(t, []string{"how", "does", "deployment", "work?"}, tokens)
}

func TestSnippetWindowsAroundEarliestHit(t *testing.T) {
	text := "padding before the keyword appears here and then a long tail follows"
	out := snippet(text, []string{"keyword"})
	assert.Contains(t, out, "keyword")
	assert.Contains(t, out, "padding")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
