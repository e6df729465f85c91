// Package langs normalises language codes to the ll_CC form used for
// translation files and database languages, and names them for display.
package langs

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Canonical returns code in ll_CC form: pt-br, pt_BR and PT_br all become
// pt_BR. A variant suffix such as @latin is kept.
func Canonical(code string) (string, error) {
	base, variant, _ := strings.Cut(strings.TrimSpace(code), "@")
	if base == "" {
		return "", fmt.Errorf("empty language code")
	}
	tag, err := language.Parse(strings.ReplaceAll(base, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	lang, _ := tag.Base()
	out := lang.String()
	if region, conf := tag.Region(); conf == language.Exact {
		out += "_" + region.String()
	}
	if variant != "" {
		out += "@" + variant
	}
	return out, nil
}

// Parent returns the base language of a regional code: fr for fr_BE. It
// returns "" when code has no region.
func Parent(code string) string {
	base, _, ok := strings.Cut(code, "_")
	if !ok {
		return ""
	}
	return base
}

// Tag returns the BCP 47 tag of an ll_CC code.
func Tag(code string) (language.Tag, error) {
	base, variant, _ := strings.Cut(code, "@")
	s := strings.ReplaceAll(base, "_", "-")
	if variant == "latin" {
		s += "-Latn"
	}
	return language.Parse(s)
}

// DisplayName returns "English name / Native name", or a single name when
// both are the same. Unknown codes are returned unchanged.
func DisplayName(code string) string {
	tag, err := Tag(code)
	if err != nil {
		return code
	}
	english := display.English.Tags().Name(tag)
	native := display.Self.Name(tag)
	switch {
	case english == "" && native == "":
		return code
	case native == "" || native == english:
		return english
	case english == "":
		return native
	}
	return english + " / " + native
}

// Match returns the entry of available closest to code: the exact code,
// then its parent language. ok is false when neither is available.
func Match(code string, available []string) (string, bool) {
	for _, want := range []string{code, Parent(code)} {
		if want == "" {
			continue
		}
		for _, a := range available {
			if a == want {
				return a, true
			}
		}
	}
	return "", false
}
