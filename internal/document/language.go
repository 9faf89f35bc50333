package document

import (
	"fmt"
	"sort"
	"strings"
)

// Language is a registered source language tag (e.g. "sol", "rs").
type Language string

const (
	Solidity   Language = "sol"
	Rust       Language = "rs"
	Go         Language = "go"
	JavaScript Language = "js"
	Python     Language = "py"
)

// LanguageSpec describes how files of a language are discovered and split.
type LanguageSpec struct {
	Tag        Language
	Extensions []string
	// Statements are the language-level split points, coarsest first.
	Statements []string
}

var registry = map[Language]LanguageSpec{
	Solidity: {
		Tag:        Solidity,
		Extensions: []string{".sol"},
		Statements: []string{
			"\npragma ", "\nusing ", "\ncontract ", "\ninterface ", "\nlibrary ",
			"\nconstructor ", "\ntype ", "\nfunction ", "\nevent ", "\nmodifier ",
			"\nerror ", "\nstruct ", "\nenum ", "\nif ", "\nfor ", "\nwhile ",
			"\ndo while ", "\nassembly ",
		},
	},
	Rust: {
		Tag:        Rust,
		Extensions: []string{".rs"},
		Statements: []string{
			"\nfn ", "\nconst ", "\nlet ", "\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ",
		},
	},
	Go: {
		Tag:        Go,
		Extensions: []string{".go"},
		Statements: []string{
			"\nfunc ", "\nvar ", "\nconst ", "\ntype ", "\nif ", "\nfor ", "\nswitch ", "\ncase ",
		},
	},
	JavaScript: {
		Tag:        JavaScript,
		Extensions: []string{".js"},
		Statements: []string{
			"\nfunction ", "\nconst ", "\nlet ", "\nvar ", "\nclass ", "\nif ", "\nfor ",
			"\nwhile ", "\nswitch ", "\ncase ", "\ndefault ",
		},
	},
	Python: {
		Tag:        Python,
		Extensions: []string{".py"},
		Statements: []string{"\nclass ", "\ndef ", "\n\tdef "},
	},
}

// genericSeparators is the fallback hierarchy shared by every language.
var genericSeparators = []string{"\n\n", "\n", " "}

// Lookup returns the spec for a language tag.
func Lookup(tag string) (LanguageSpec, error) {
	spec, ok := registry[Language(strings.ToLower(strings.TrimSpace(tag)))]
	if !ok {
		return LanguageSpec{}, fmt.Errorf("unsupported language %q (supported: %s)", tag, strings.Join(SupportedTags(), ", "))
	}
	return spec, nil
}

// SupportedTags lists the registered language tags in sorted order.
func SupportedTags() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, string(tag))
	}
	sort.Strings(tags)
	return tags
}

// Separators returns the full separator hierarchy for the language:
// language statements first, then blank lines, newlines and spaces.
// A zero LanguageSpec yields only the generic hierarchy.
func (l LanguageSpec) Separators() []string {
	seps := make([]string, 0, len(l.Statements)+len(genericSeparators))
	seps = append(seps, l.Statements...)
	return append(seps, genericSeparators...)
}

// Matches reports whether a file name carries one of the language's extensions.
func (l LanguageSpec) Matches(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range l.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
