// Package ecommerce drives the shop-specific flow: search the site with a
// keyword distilled from the instruction, then extract product cards from
// the results page.
package ecommerce

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// IntentParser distills a search keyword and structured conditions from the
// free-form instruction. Implementations are external (LLM-backed).
type IntentParser interface {
	Parse(ctx context.Context, instruction string) (types.SearchIntent, error)
}

// missingKeyword is the sentinel the parser returns when the instruction is
// all filters and no obvious keyword.
const missingKeyword = "udgu"

// BuildSearchKeyword collapses the parsed intent into the string typed into
// the site's search box. Conditions marked for keyword application are
// appended; a parse failure or timeout falls back to the raw instruction.
// The parser carries no deadline of its own, so timeout bounds the call;
// zero disables the bound.
func BuildSearchKeyword(ctx context.Context, parser IntentParser, instruction string, timeout time.Duration, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	instruction = strings.TrimSpace(instruction)
	if parser == nil {
		return instruction
	}

	pctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	intent, err := parser.Parse(pctx, instruction)
	if err != nil {
		logger.Warn("search intent parsing failed", "error", err)
		return instruction
	}

	var parts []string
	keyword := strings.TrimSpace(intent.Keyword)
	if keyword != "" && !strings.EqualFold(keyword, missingKeyword) {
		parts = append(parts, keyword)
	} else {
		logger.Warn("no keyword found in instruction")
	}
	for _, cond := range intent.Conditions {
		value := strings.TrimSpace(cond.Value)
		if value == "" {
			continue
		}
		if cond.ApplyVia == "keyword" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}
