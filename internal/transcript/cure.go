package transcript

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceReg = regexp.MustCompile(`\s+`)
	alphaReg = regexp.MustCompile(`^[a-zA-Z\s]+$`)

	// BracketAside matches inline annotations such as "[laughs]".
	BracketAside = regexp.MustCompile(`\[[^\]]*\]`)

	punctReplacer = strings.NewReplacer(
		`"`, "", "!", "", "?", "", ".", "", ",", "",
		"’", "", "‘", "", "'", "",
		"<", "", ">", "", "[", "", "]", "", "(", "", ")", "",
		"-", " ", "_", " ",
	)
)

// Curator normalizes transcript text: dataset markers, fixed punctuation
// table, lowercase, single spaces.
type Curator struct {
	markers     []*regexp.Regexp
	literals    *strings.Replacer
	foldAccents bool
}

type Option func(*Curator)

// WithMarkers replaces the default marker patterns.
func WithMarkers(patterns ...*regexp.Regexp) Option {
	return func(c *Curator) { c.markers = patterns }
}

// WithLiterals removes fixed substrings after the marker patterns.
func WithLiterals(literals ...string) Option {
	return func(c *Curator) {
		pairs := make([]string, 0, len(literals)*2)
		for _, l := range literals {
			pairs = append(pairs, l, "")
		}
		c.literals = strings.NewReplacer(pairs...)
	}
}

// WithAccentFolding strips combining marks ("café" -> "cafe").
func WithAccentFolding() Option {
	return func(c *Curator) { c.foldAccents = true }
}

func NewCurator(opts ...Option) *Curator {
	c := &Curator{markers: []*regexp.Regexp{BracketAside}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Default strips bracketed asides and the fixed punctuation table.
var Default = NewCurator()

// Cure is shorthand for Default.Cure.
func Cure(text string) string {
	return Default.Cure(text)
}

// Cure applies, in order: marker removal, punctuation table, lowercase,
// whitespace collapse.
func (c *Curator) Cure(text string) string {
	for _, m := range c.markers {
		text = m.ReplaceAllString(text, " ")
	}
	if c.literals != nil {
		text = c.literals.Replace(text)
	}
	if c.foldAccents {
		text = fold(text)
	}
	text = punctReplacer.Replace(text)
	text = strings.ToLower(text)
	return CollapseSpaces(text)
}

// CollapseSpaces turns every whitespace run into one space and trims.
func CollapseSpaces(text string) string {
	return strings.TrimSpace(spaceReg.ReplaceAllString(text, " "))
}

// IsAlpha reports whether text holds only ASCII letters and whitespace.
func IsAlpha(text string) bool {
	return alphaReg.MatchString(text)
}

func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}
