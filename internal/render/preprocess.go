package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	currencyRe   = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})+|\d{4,7})\b`)
	ellipsisRe   = regexp.MustCompile(`\s*\.\.\.\s*`)
	emDashRe     = regexp.MustCompile(`\s*—\s*`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Preprocess normalizes reply text for natural prosody before synthesis:
// currency shorthand is expanded to spoken-friendly $NNK / $N.NM form,
// ellipses and em-dashes get breathing room, runs of whitespace collapse,
// and the utterance always ends with terminal punctuation.
func Preprocess(text string) string {
	text = currencyRe.ReplaceAllStringFunc(text, expandCurrency)
	text = ellipsisRe.ReplaceAllString(text, " ... ")
	text = emDashRe.ReplaceAllString(text, " — ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	if !strings.ContainsRune(".!?…", last) {
		text += "."
	}
	return text
}

func expandCurrency(match string) string {
	digits := strings.ReplaceAll(strings.TrimPrefix(match, "$"), ",", "")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1000 {
		return match
	}
	if n >= 1_000_000 {
		return "$" + trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	}
	return "$" + trimZero(fmt.Sprintf("%.1f", float64(n)/1_000)) + "K"
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
