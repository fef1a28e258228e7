// Package analysis produces a short summary and a deduplicated pricing-plan
// list for an ingested source. It asks the remote model first and falls back
// to a deterministic local heuristic, so ingestion never blocks on the model.
package analysis

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
	maxPromptChars       = 22000
	maxPlans             = 8
	fallbackSummaryChars = 180

	// EmptySummary is returned when there is no text to summarize.
	EmptySummary = "本文からの要約を抽出できませんでした。"
)

var planPattern = regexp.MustCompile(
	`([0-9A-Za-z\x{3041}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FFF}]{1,20}?)\s*([0-9]{1,3}(?:,[0-9]{3})+|[0-9]+)円/月`)

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type Result struct {
	Summary string
	Plans   []model.PricingPlan
}

type Pipeline struct {
	completer Completer
	cfg       ai.ChatConfig
}

func NewPipeline(completer Completer, cfg ai.ChatConfig) *Pipeline {
	return &Pipeline{completer: completer, cfg: cfg}
}

// Analyze summarizes the text and extracts pricing plans. Remote failures are
// logged and replaced by the local fallback; Analyze itself never fails.
func (p *Pipeline) Analyze(ctx context.Context, name, text string) Result {
	if p.cfg.Configured() && p.completer != nil {
		if result, ok := p.analyzeRemote(ctx, name, text); ok {
			return result
		}
	}
	return analyzeLocal(text)
}

func (p *Pipeline) analyzeRemote(ctx context.Context, name, text string) (Result, bool) {
	prompt := fmt.Sprintf(`次の資料を分析してください。

資料名: %s
本文:
%s

厳密なJSONのみで回答してください。他のテキストは一切含めないでください:
{"summary": "200文字以内の要約", "plans": [{"name": "プラン名", "price_monthly_yen": 1000, "note": "補足"}]}
料金プランが見つからない場合は "plans": [] としてください。`,
		name, truncateRunes(text, maxPromptChars))

	raw, err := p.completer.Complete(ctx, p.cfg, []ai.ChatMessage{
		{Role: "system", Content: "You are a precise document analyst. Reply with strict JSON only."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		log.Printf("analysis: remote call failed, using local fallback: %v", err)
		return Result{}, false
	}

	parsed, ok := parseAnalysisJSON(raw)
	if !ok {
		log.Printf("analysis: unparseable remote payload, using local fallback")
		return Result{}, false
	}

	summary := strings.TrimSpace(parsed.Summary)
	plans := sanitizePlans(parsed.Plans)
	if summary == "" && len(plans) == 0 {
		return Result{}, false
	}
	if summary == "" {
		summary = fallbackSummary(text)
	}
	return Result{Summary: summary, Plans: plans}, true
}

type rawAnalysis struct {
	Summary string    `json:"summary"`
	Plans   []rawPlan `json:"plans"`
}

type rawPlan struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price_monthly_yen"`
	Note  string          `json:"note"`
}

// parseAnalysisJSON tries a direct parse, then retries on the first balanced
// {...} substring of the raw reply (models like to wrap JSON in prose).
func parseAnalysisJSON(raw string) (rawAnalysis, bool) {
	var parsed rawAnalysis
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed, true
	}
	candidate, ok := firstBalancedObject(raw)
	if !ok {
		return rawAnalysis{}, false
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return rawAnalysis{}, false
	}
	return parsed, true
}

func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func sanitizePlans(raws []rawPlan) []model.PricingPlan {
	plans := make([]model.PricingPlan, 0, len(raws))
	seen := map[string]bool{}
	for _, rp := range raws {
		name := strings.TrimSpace(rp.Name)
		if name == "" {
			continue
		}
		plan := model.PricingPlan{
			Name:            name,
			PriceMonthlyYen: coercePrice(rp.Price),
			Note:            strings.TrimSpace(rp.Note),
		}
		key := planKey(plan)
		if seen[key] {
			continue
		}
		seen[key] = true
		plans = append(plans, plan)
		if len(plans) == maxPlans {
			break
		}
	}
	return plans
}

// coercePrice accepts a JSON number or a numeric string ("1,000" included)
// and returns nil for anything else, so unknown prices stay unknown.
func coercePrice(raw json.RawMessage) *int {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err == nil {
		v := int(asFloat)
		return &v
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		cleaned := strings.ReplaceAll(strings.TrimSpace(asString), ",", "")
		if cleaned == "" {
			return nil
		}
		if v, convErr := strconv.Atoi(cleaned); convErr == nil {
			return &v
		}
	}
	return nil
}

func planKey(p model.PricingPlan) string {
	if p.PriceMonthlyYen == nil {
		return p.Name + "|?"
	}
	return p.Name + "|" + strconv.Itoa(*p.PriceMonthlyYen)
}

func analyzeLocal(text string) Result {
	return Result{
		Summary: fallbackSummary(text),
		Plans:   ExtractPlans(text),
	}
}

func fallbackSummary(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return EmptySummary
	}
	return truncateRunes(trimmed, fallbackSummaryChars)
}

// ExtractPlans scans text for "<名前><金額>円/月" shapes and returns up to
// eight plans deduplicated by (name, price).
func ExtractPlans(text string) []model.PricingPlan {
	matches := planPattern.FindAllStringSubmatch(text, -1)
	plans := make([]model.PricingPlan, 0, len(matches))
	seen := map[string]bool{}
	for _, m := range matches {
		amount, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
		if err != nil {
			continue
		}
		plan := model.PricingPlan{Name: m[1], PriceMonthlyYen: &amount}
		key := planKey(plan)
		if seen[key] {
			continue
		}
		seen[key] = true
		plans = append(plans, plan)
		if len(plans) == maxPlans {
			break
		}
	}
	return plans
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
