package manifest

import (
	"strings"

	"corpus-prep/internal/transcript"
)

// Report summarises one verification pass.
type Report struct {
	Path      string `json:"path"`
	Total     int    `json:"total"`
	Kept      int    `json:"kept"`
	Dropped   []Skip `json:"dropped,omitempty"`
	Rewritten bool   `json:"rewritten"`
}

// Verifier drops manifest lines whose audio is gone or whose transcript is
// unusable, and rewrites the manifest with what is left.
type Verifier struct {
	exists func(string) bool
}

func NewVerifier() *Verifier {
	return &Verifier{exists: Exists}
}

// Verify checks every line of the manifest at path. The file is only
// rewritten when at least one line changed or was dropped, so verifying a
// clean manifest leaves it untouched.
func (v *Verifier) Verify(path string) (*Report, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}

	rep := &Report{Path: path}
	kept := make([]string, 0, len(lines))
	changed := false

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			changed = true
			continue
		}
		rep.Total++

		normalized, skip := v.check(line)
		if skip != nil {
			skip.Source = path
			skip.Line = i + 1
			rep.Dropped = append(rep.Dropped, *skip)
			changed = true
			continue
		}
		if normalized != line {
			changed = true
		}
		kept = append(kept, normalized)
	}
	rep.Kept = len(kept)

	if changed {
		if err := WriteAtomic(path, kept); err != nil {
			return rep, err
		}
		rep.Rewritten = true
	}
	return rep, nil
}

func (v *Verifier) check(line string) (string, *Skip) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(parts) < 3 {
		return "", &Skip{Reason: ReasonMalformed, Detail: line}
	}

	id, path, dur := parts[0], parts[1], parts[2]
	text := ""
	if len(parts) == 4 {
		text = transcript.CollapseSpaces(parts[3])
	}

	if !v.exists(path) {
		return "", &Skip{Reason: ReasonMissingAudio, ID: id, Path: path}
	}
	if reason, ok := CheckText(text); !ok {
		return "", &Skip{Reason: reason, ID: id, Path: path, Detail: text}
	}

	return id + " " + path + " " + dur + " " + text, nil
}

// CheckText applies the transcript rules of a valid manifest line: at least
// two characters, letters and spaces only.
func CheckText(text string) (Reason, bool) {
	switch {
	case len(text) < 2:
		return ReasonShortText, false
	case !transcript.IsAlpha(text):
		return ReasonNotAlpha, false
	}
	return "", true
}
