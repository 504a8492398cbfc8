// Package vocab derives word lists and letter lexicons from finished
// manifests and language models.
package vocab

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"corpus-prep/internal/manifest"
)

var (
	// unigram line of an ARPA model: "<logprob>\t<word>[\t<backoff>]"
	unigramLine = regexp.MustCompile(`^-*[0-9.]+\t\S+\t*-*[0-9.]*$`)
	validWord   = regexp.MustCompile(`^[a-z']+$`)
)

// WordCount - слово и сколько раз оно встретилось
type WordCount struct {
	Word  string
	Count int
}

// WordCounts counts transcript words over all given manifests, most
// frequent first, ties by word.
func WordCounts(lists ...string) ([]WordCount, error) {
	counts := map[string]int{}
	for _, list := range lists {
		recs, err := manifest.ReadManifest(list)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			for _, w := range strings.Fields(r.Text) {
				counts[w]++
			}
		}
	}

	out := make([]WordCount, 0, len(counts))
	for w, n := range counts {
		out = append(out, WordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	return out, nil
}

// WriteWordList writes "word count" lines.
func WriteWordList(path string, words []WordCount) error {
	lines := make([]string, len(words))
	for i, w := range words {
		lines[i] = w.Word + " " + strconv.Itoa(w.Count)
	}
	return manifest.WriteAtomic(path, lines)
}

// ReadARPAUnigrams returns the unigram vocabulary of an ARPA model in file
// order, without sentence markers and <unk>. Any other word outside
// [a-z'] is an error.
func ReadARPAUnigrams(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")
		if !unigramLine.MatchString(line) {
			continue
		}
		word := strings.ToLower(strings.TrimSpace(strings.Split(line, "\t")[1]))
		switch word {
		case "<unk>", "<s>", "</s>":
			continue
		}
		if !validWord.MatchString(word) {
			return nil, fmt.Errorf("%s:%d: invalid word %q", path, n, word)
		}
		if !seen[word] {
			seen[word] = true
			words = append(words, word)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// Spell maps a word to its letter tokens followed by the word boundary.
func Spell(word string) string {
	letters := strings.Split(word, "")
	return strings.Join(letters, " ") + " |"
}

// WriteLexicon writes "word\tw o r d |" lines.
func WriteLexicon(path string, words []string) error {
	lines := make([]string, len(words))
	for i, w := range words {
		lines[i] = w + "\t" + Spell(w)
	}
	return manifest.WriteAtomic(path, lines)
}

// Tokens returns the boundary token followed by every letter used in
// words, sorted.
func Tokens(words []string) []string {
	set := map[string]bool{}
	for _, w := range words {
		for _, r := range w {
			set[string(r)] = true
		}
	}
	letters := make([]string, 0, len(set))
	for l := range set {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	return append([]string{"|"}, letters...)
}

func WriteTokens(path string, words []string) error {
	return manifest.WriteAtomic(path, Tokens(words))
}
