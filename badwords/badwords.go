package badwords

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joy095/carrental/logger"
)

// badWordsMap holds lowercased words. Nil until LoadBadWords or AddBadWord.
var (
	badWordsMap map[string]struct{}
	mu          sync.RWMutex
)

// LoadBadWords replaces the list with the words in filename, one per line.
func LoadBadWords(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read bad words file: %w", err)
	}

	words := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		if w := strings.TrimSpace(line); w != "" && !strings.HasPrefix(w, "#") {
			words[strings.ToLower(w)] = struct{}{}
		}
	}

	mu.Lock()
	badWordsMap = words
	mu.Unlock()

	logger.InfoLogger.Infof("Loaded %d bad words from %s", len(words), filename)
	return nil
}

// ContainsBadWords reports whether any word of text is on the list. Words
// are split on anything that is not an ASCII letter or digit.
func ContainsBadWords(text string) bool {
	mu.RLock()
	defer mu.RUnlock()

	if len(badWordsMap) == 0 {
		return false
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, word := range words {
		if _, found := badWordsMap[word]; found {
			logger.WarnLogger.Warnf("Bad word detected in submitted text")
			return true
		}
	}
	return false
}

// AddBadWord adds a single word to the list.
func AddBadWord(badWord string) error {
	badWord = strings.TrimSpace(badWord)
	if badWord == "" {
		return errors.New("bad word must not be empty")
	}

	mu.Lock()
	defer mu.Unlock()
	if badWordsMap == nil {
		badWordsMap = make(map[string]struct{})
	}
	badWordsMap[strings.ToLower(badWord)] = struct{}{}
	return nil
}

// Reset clears the list.
func Reset() {
	mu.Lock()
	badWordsMap = nil
	mu.Unlock()
}
