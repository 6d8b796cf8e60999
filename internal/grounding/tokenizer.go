package grounding

// minTokenLen drops short tokens that carry no retrieval signal.
const minTokenLen = 3

// tokenize splits text into lowercase alphanumeric tokens, dropping
// tokens shorter than minTokenLen.
func tokenize(text string) []string {
	var words []string
	word := make([]byte, 0, 32)
	flush := func() {
		if len(word) >= minTokenLen {
			words = append(words, string(word))
		}
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if isAlphaNum(c) {
			if c >= 'A' && c <= 'Z' {
				c += 32 // lowercase
			}
			word = append(word, c)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// keywordSet builds the deduplicated token set for a query string.
func keywordSet(parts ...string) map[string]bool {
	set := make(map[string]bool)
	for _, p := range parts {
		for _, tok := range tokenize(p) {
			set[tok] = true
		}
	}
	return set
}

// hashString is a 32-bit FNV-1a polynomial hash. The constants are
// fixed so the same input hashes identically across platforms and
// process restarts; anchor selection depends on that stability.
func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
