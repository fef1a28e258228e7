// Package answer turns a question and a candidate set of sources into a
// reply. It tries the remote model first and degrades through two local
// tiers (structured price data, token-overlap snippet), so an answer is
// always produced even with no external service available.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"knowchat/internal/ai"
	"knowchat/internal/model"
)

const (
	// NoSourcesMessage is returned when the candidate set is empty.
	NoSourcesMessage = "まだ資料がありません。先にPDF・テキスト・URLのいずれかを追加してください。"
	// NoUsableTextMessage is returned when no candidate has any text.
	NoUsableTextMessage = "資料から回答に使えるテキストが見つかりませんでした。"
	// PriceBlockHeader prefixes the price-intent reply.
	PriceBlockHeader = "料金情報:"

	maxRemoteSources = 5
	maxSummaryChars  = 350
	maxTextChars     = 1800
	maxPriceHits     = 5
	snippetBefore    = 80
	snippetAfter     = 220
	minTokenLength   = 2
)

var (
	priceIntentPattern = regexp.MustCompile(`料金|価格|費用|プラン|月額|値段`)
	yenPattern         = regexp.MustCompile(`[0-9][0-9,]*円/月`)
)

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type Engine struct {
	completer Completer
	cfg       ai.ChatConfig
}

func NewEngine(completer Completer, cfg ai.ChatConfig) *Engine {
	return &Engine{completer: completer, cfg: cfg}
}

// Answer produces a reply for the question against the candidate sources.
// selected pins the answer to a single source by name in the remote prompt;
// nil means "all sources". Never returns an error: remote failures are
// logged and replaced by the local fallback.
func (e *Engine) Answer(ctx context.Context, question string, selected *model.Source, candidates []model.Source) string {
	if len(candidates) == 0 {
		return NoSourcesMessage
	}

	if e.cfg.Configured() && e.completer != nil {
		if reply, ok := e.answerRemote(ctx, question, selected, candidates); ok {
			return reply
		}
	}

	if priceIntentPattern.MatchString(question) {
		if block := priceBlock(candidates); block != "" {
			return block
		}
	}

	return overlapAnswer(question, candidates)
}

type remoteSource struct {
	Name         string              `json:"name"`
	Summary      string              `json:"summary"`
	Text         string              `json:"text"`
	PricingPlans []model.PricingPlan `json:"pricingPlans"`
}

func (e *Engine) answerRemote(ctx context.Context, question string, selected *model.Source, candidates []model.Source) (string, bool) {
	limit := len(candidates)
	if limit > maxRemoteSources {
		limit = maxRemoteSources
	}
	sources := make([]remoteSource, 0, limit)
	for _, src := range candidates[:limit] {
		sources = append(sources, remoteSource{
			Name:         src.Name,
			Summary:      truncateRunes(src.Summary, maxSummaryChars),
			Text:         truncateRunes(src.Text, maxTextChars),
			PricingPlans: src.PricingPlans(),
		})
	}

	var selectedName interface{}
	if selected != nil {
		selectedName = selected.Name
	}
	payload, err := json.Marshal(map[string]interface{}{
		"question":           question,
		"selectedSourceName": selectedName,
		"sources":            sources,
	})
	if err != nil {
		log.Printf("answer: marshal remote payload failed: %v", err)
		return "", false
	}

	reply, err := e.completer.Complete(ctx, e.cfg, []ai.ChatMessage{
		{Role: "system", Content: "あなたは社内ナレッジアシスタントです。与えられた資料の内容だけを根拠に、日本語で簡潔に回答してください。資料に無いことは「資料に記載がありません」と答えてください。"},
		{Role: "user", Content: string(payload)},
	})
	if err != nil {
		log.Printf("answer: remote call failed, using local fallback: %v", err)
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	return reply, true
}

// priceBlock prefers structured pricing plans already stored on the
// candidates; only when none exist does it fall back to a textual scan for
// "N円/月" shapes. Returns "" when neither tier yields anything.
func priceBlock(candidates []model.Source) string {
	var lines []string
	seen := map[string]bool{}
	for _, src := range candidates {
		for _, plan := range src.PricingPlans() {
			key := planKey(plan)
			if seen[key] {
				continue
			}
			seen[key] = true
			lines = append(lines, formatPlan(plan))
		}
	}

	if len(lines) == 0 {
		seenHits := map[string]bool{}
		for _, src := range candidates {
			for _, hit := range yenPattern.FindAllString(src.Text, -1) {
				if seenHits[hit] {
					continue
				}
				seenHits[hit] = true
				lines = append(lines, hit)
				if len(lines) == maxPriceHits {
					break
				}
			}
			if len(lines) == maxPriceHits {
				break
			}
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return PriceBlockHeader + "\n" + strings.Join(lines, "\n")
}

func formatPlan(plan model.PricingPlan) string {
	if plan.PriceMonthlyYen == nil {
		return plan.Name + ": 価格不明"
	}
	return fmt.Sprintf("%s: %s円/月", plan.Name, formatYen(*plan.PriceMonthlyYen))
}

func planKey(p model.PricingPlan) string {
	if p.PriceMonthlyYen == nil {
		return p.Name + "|?"
	}
	return p.Name + "|" + strconv.Itoa(*p.PriceMonthlyYen)
}

func formatYen(v int) string {
	s := strconv.Itoa(v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

// overlapAnswer scores each candidate by how many question tokens occur in
// its text. Strictly-greater comparison keeps the earlier candidate on ties.
func overlapAnswer(question string, candidates []model.Source) string {
	tokens := questionTokens(question)

	bestScore := -1
	bestIdx := -1
	for i := range candidates {
		text := strings.TrimSpace(candidates[i].Text)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		score := 0
		for _, token := range tokens {
			if strings.Contains(lower, token) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return NoUsableTextMessage
	}

	best := candidates[bestIdx]
	if bestScore <= 0 && strings.TrimSpace(best.Summary) != "" {
		return fmt.Sprintf("%s の概要: %s", best.Name, best.Summary)
	}
	return fmt.Sprintf("「%s」を参照: %s", best.Name, snippet(best.Text, tokens))
}

func questionTokens(question string) []string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	var tokens []string
	for _, field := range strings.Fields(normalized) {
		if len([]rune(field)) >= minTokenLength {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// snippet extracts a window around the earliest token hit in the text.
func snippet(text string, tokens []string) string {
	runes := []rune(text)
	lower := strings.ToLower(text)

	hit := -1
	for _, token := range tokens {
		if idx := strings.Index(lower, token); idx >= 0 {
			runeIdx := len([]rune(lower[:idx]))
			if hit < 0 || runeIdx < hit {
				hit = runeIdx
			}
		}
	}
	if hit < 0 {
		hit = 0
	}

	start := hit - snippetBefore
	if start < 0 {
		start = 0
	}
	end := hit + snippetAfter
	if end > len(runes) {
		end = len(runes)
	}
	return strings.Join(strings.Fields(string(runes[start:end])), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
