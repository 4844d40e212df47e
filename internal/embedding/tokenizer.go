package embedding

import (
	"hash/fnv"
	"strings"
)

const (
	clsToken  = 101
	sepToken  = 102
	vocabSize = 30000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
	TokenizePair(first, second string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize produces [CLS] words [SEP], padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	return t.TokenizePair(text, "", maxTokens)
}

// TokenizePair produces [CLS] first [SEP] second [SEP] for cross-encoders.
// Second-segment tokens get token type 1. The second segment is truncated first.
func (t *SimpleTokenizer) TokenizePair(first, second string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsToken
	attentionMask[0] = 1
	pos := 1
	put := func(id int64, typ int64) bool {
		if pos >= maxTokens {
			return false
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		tokenTypeIDs[pos] = typ
		pos++
		return true
	}

	firstWords := SplitWords(strings.ToLower(first))
	// reserve room for the trailing separators
	reserve := 1
	if second != "" {
		reserve = 2
	}
	for _, w := range firstWords {
		if pos >= maxTokens-reserve {
			break
		}
		put(wordID(w), 0)
	}
	put(sepToken, 0)
	if second == "" {
		return inputIDs, attentionMask, tokenTypeIDs
	}
	for _, w := range SplitWords(strings.ToLower(second)) {
		if pos >= maxTokens-1 {
			break
		}
		put(wordID(w), 1)
	}
	put(sepToken, 1)
	return inputIDs, attentionMask, tokenTypeIDs
}

func wordID(w string) int64 {
	return int64(HashString(w)%(vocabSize-1000)) + 1000
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash for use as a simple token ID.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
