package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowchat/internal/ai"
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

func remoteConfig() ai.ChatConfig {
	return ai.ChatConfig{BaseURL: "https://llm.example.com/v1", APIKey: "test-key", Model: "test-model"}
}

func TestExtractPlans(t *testing.T) {
	plans := ExtractPlans("ベーシック 1,000円/月 プロ 3,000円/月")
	require.Len(t, plans, 2)
	assert.Equal(t, "ベーシック", plans[0].Name)
	require.NotNil(t, plans[0].PriceMonthlyYen)
	assert.Equal(t, 1000, *plans[0].PriceMonthlyYen)
	assert.Equal(t, "プロ", plans[1].Name)
	require.NotNil(t, plans[1].PriceMonthlyYen)
	assert.Equal(t, 3000, *plans[1].PriceMonthlyYen)
}

func TestExtractPlansDeduplicates(t *testing.T) {
	plans := ExtractPlans("プロ 3,000円/月 の契約は プロ 3,000円/月 です")
	assert.Len(t, plans, 1)
}

func TestExtractPlansCap(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&sb, "プラン%d %d円/月 ", i, i*100)
	}
	assert.Len(t, ExtractPlans(sb.String()), 8)
}

func TestExtractPlansNoMatches(t *testing.T) {
	assert.Empty(t, ExtractPlans("この資料に料金の記載はありません"))
	assert.Empty(t, ExtractPlans("年額 12,000円 のみ"))
}

func TestAnalyzeLocalFallbackWithoutRemote(t *testing.T) {
	p := NewPipeline(nil, ai.ChatConfig{})
	result := p.Analyze(context.Background(), "doc", "スタンダード 2,500円/月 をご利用いただけます")
	assert.Contains(t, result.Summary, "スタンダード")
	require.Len(t, result.Plans, 1)
	assert.Equal(t, 2500, *result.Plans[0].PriceMonthlyYen)
}

func TestAnalyzeEmptyText(t *testing.T) {
	p := NewPipeline(nil, ai.ChatConfig{})
	result := p.Analyze(context.Background(), "doc", "   ")
	assert.Equal(t, EmptySummary, result.Summary)
	assert.Empty(t, result.Plans)
}

func TestFallbackSummaryTruncates(t *testing.T) {
	long := strings.Repeat("あ", 500)
	summary := fallbackSummary(long)
	assert.Len(t, []rune(summary), fallbackSummaryChars)
}

func TestAnalyzeRemoteStrictJSON(t *testing.T) {
	completer := &stubCompleter{reply: `{"summary": "法人向けの料金資料です", "plans": [{"name": "Pro", "price_monthly_yen": 1200, "note": "年契約で割引"}]}`}
	p := NewPipeline(completer, remoteConfig())

	result := p.Analyze(context.Background(), "pricing", "本文")
	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, "法人向けの料金資料です", result.Summary)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, "Pro", result.Plans[0].Name)
	assert.Equal(t, 1200, *result.Plans[0].PriceMonthlyYen)
	assert.Equal(t, "年契約で割引", result.Plans[0].Note)
}

func TestAnalyzeRemoteRescuesWrappedJSON(t *testing.T) {
	completer := &stubCompleter{reply: "はい、分析しました。\n" +
		`{"summary": "概要 } を含む", "plans": []}` + "\n以上です。"}
	p := NewPipeline(completer, remoteConfig())

	result := p.Analyze(context.Background(), "doc", "本文")
	assert.Equal(t, "概要 } を含む", result.Summary)
}

func TestAnalyzeRemoteSanitizesPlans(t *testing.T) {
	completer := &stubCompleter{reply: `{"summary": "s", "plans": [
		{"name": "Pro", "price_monthly_yen": "1,200"},
		{"name": "", "price_monthly_yen": 500},
		{"name": "Pro", "price_monthly_yen": 1200},
		{"name": "Enterprise", "price_monthly_yen": "お問い合わせ"}
	]}`}
	p := NewPipeline(completer, remoteConfig())

	result := p.Analyze(context.Background(), "doc", "本文")
	require.Len(t, result.Plans, 2)
	assert.Equal(t, "Pro", result.Plans[0].Name)
	require.NotNil(t, result.Plans[0].PriceMonthlyYen)
	assert.Equal(t, 1200, *result.Plans[0].PriceMonthlyYen)
	assert.Equal(t, "Enterprise", result.Plans[1].Name)
	assert.Nil(t, result.Plans[1].PriceMonthlyYen)
}

func TestAnalyzeRemoteErrorFallsBackLocal(t *testing.T) {
	completer := &stubCompleter{err: errors.New("upstream timeout")}
	p := NewPipeline(completer, remoteConfig())

	result := p.Analyze(context.Background(), "doc", "ライト 980円/月")
	require.Len(t, result.Plans, 1)
	assert.Equal(t, 980, *result.Plans[0].PriceMonthlyYen)
}

func TestAnalyzeRemoteGarbageFallsBackLocal(t *testing.T) {
	completer := &stubCompleter{reply: "すみません、JSONでは回答できません。"}
	p := NewPipeline(completer, remoteConfig())

	result := p.Analyze(context.Background(), "doc", "本文テキスト")
	assert.Equal(t, "本文テキスト", result.Summary)
}

func TestFirstBalancedObject(t *testing.T) {
	candidate, ok := firstBalancedObject(`noise {"a": "b {not a brace}", "c": {"d": 1}} trailing`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "b {not a brace}", "c": {"d": 1}}`, candidate)

	_, ok = firstBalancedObject("no object here")
	assert.False(t, ok)

	_, ok = firstBalancedObject(`{"unterminated": true`)
	assert.False(t, ok)
}

func TestCoercePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want *int
	}{
		{`1000`, intPtr(1000)},
		{`"1,000"`, intPtr(1000)},
		{`"2500"`, intPtr(2500)},
		{`1999.9`, intPtr(1999)},
		{`"無料"`, nil},
		{`null`, nil},
		{`true`, nil},
		{`""`, nil},
	}
	for _, tc := range cases {
		got := coercePrice([]byte(tc.raw))
		if tc.want == nil {
			assert.Nil(t, got, tc.raw)
			continue
		}
		require.NotNil(t, got, tc.raw)
		assert.Equal(t, *tc.want, *got, tc.raw)
	}
}

func intPtr(v int) *int { return &v }
