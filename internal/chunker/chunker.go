// Package chunker splits resource text into token-bounded chunks for the
// context planner's chunk-prefix inclusion mode. Boundaries prefer markdown
// structure (headings, paragraph breaks) and are stable for unchanged text.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTargetTokens is the per-chunk token target. Matches the
	// ingestion default for oversized resources.
	DefaultTargetTokens = 8000

	// approxCharsPerToken keeps block sizing deterministic without a
	// tokenizer round-trip; final chunk counts come from the caller's
	// counter.
	approxCharsPerToken = 4
)

// Options configures chunking behavior.
type Options struct {
	TargetTokens int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{TargetTokens: DefaultTargetTokens}
}

// Chunk is one contiguous slice of the input text, in order.
type Chunk struct {
	Text string
	// EstTokens is the heuristic token estimate used for sizing; callers
	// replace it with an exact count before persisting.
	EstTokens int
}

// Split cuts text into ordered chunks of roughly opts.TargetTokens each.
// Short text returns a single chunk. Splitting is deterministic: the same
// text always yields the same boundaries.
func Split(text string, opts Options) []Chunk {
	if opts.TargetTokens <= 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if estimateTokens(text) <= opts.TargetTokens {
		return []Chunk{{Text: text, EstTokens: estimateTokens(text)}}
	}

	blocks := splitBlocks(text)
	return mergeBlocks(blocks, opts)
}

func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s) / approxCharsPerToken
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// splitBlocks splits text on heading lines and double newlines.
func splitBlocks(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, t)
		}
		current = nil
	}

	prevEmpty := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush()
		}

		if trimmed == "" {
			if prevEmpty && len(current) > 0 {
				flush()
			}
			prevEmpty = true
			current = append(current, line)
			continue
		}
		prevEmpty = false
		current = append(current, line)
	}
	flush()

	return blocks
}

// mergeBlocks combines small blocks toward the target and splits oversized
// ones on line boundaries.
func mergeBlocks(blocks []string, opts Options) []Chunk {
	var results []Chunk
	var accum string

	flushAccum := func() {
		t := strings.TrimSpace(accum)
		if t == "" {
			return
		}
		if estimateTokens(t) > opts.TargetTokens {
			results = append(results, hardSplit(t, opts)...)
		} else {
			results = append(results, Chunk{Text: t, EstTokens: estimateTokens(t)})
		}
		accum = ""
	}

	for _, b := range blocks {
		if accum == "" {
			accum = b
			continue
		}
		combined := accum + "\n\n" + b
		if estimateTokens(combined) <= opts.TargetTokens {
			accum = combined
		} else {
			flushAccum()
			accum = b
		}
	}
	flushAccum()

	return results
}

// hardSplit breaks a block that exceeds the target on line boundaries.
func hardSplit(text string, opts Options) []Chunk {
	lines := strings.Split(text, "\n")
	var results []Chunk
	var current []string
	curTokens := 0

	flush := func() {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			results = append(results, Chunk{Text: t, EstTokens: estimateTokens(t)})
		}
		current = nil
		curTokens = 0
	}

	for _, line := range lines {
		lineTokens := estimateTokens(line) + 1
		if curTokens+lineTokens > opts.TargetTokens && len(current) > 0 {
			flush()
		}
		current = append(current, line)
		curTokens += lineTokens
	}
	if len(current) > 0 {
		flush()
	}

	return results
}
