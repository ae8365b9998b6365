package interp

import "strings"

// HasVariables reports whether text contains any {{ }} placeholder,
// including conditional delimiters.
func HasVariables(text string) bool {
	return anyRefRe.MatchString(text)
}

// ExtractVariables returns every variable name referenced in text,
// deduplicated in first-seen order. Default-syntax and conditional usages
// are reduced to their bare (possibly dotted) name; the endif keyword is
// not a variable.
func ExtractVariables(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range anyRefRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "endif" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// MissingVariables returns the names text requires but provided does not
// satisfy. A name is required when it appears outside every conditional
// block, lacks a default clause at that occurrence, and is not a built-in.
// The conditional-block test is textual: blocks are stripped wholesale, so
// a name also used with a default elsewhere is classified by that defaulted
// occurrence.
func (e *Engine) MissingVariables(text string, provided map[string]any) []string {
	stripped := stripConditionalBlocks(text)

	var missing []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(stripped, -1) {
		name, hasDefault := m[1], m[2] != ""
		if hasDefault || seen[name] {
			continue
		}
		root := strings.Split(name, ".")[0]
		if _, ok := provided[root]; ok {
			continue
		}
		if _, ok := e.builtin(root); ok {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	return missing
}

// stripConditionalBlocks removes every {{ if }} ... {{ endif }} region,
// innermost first, leaving only text that is unconditionally rendered.
// Dangling delimiters are dropped, matching how interpolation treats them.
func stripConditionalBlocks(text string) string {
	for {
		endif := endifRe.FindStringIndex(text)
		if endif == nil {
			break
		}
		opens := ifOpenRe.FindAllStringIndex(text[:endif[0]], -1)
		if len(opens) == 0 {
			text = text[:endif[0]] + text[endif[1]:]
			continue
		}
		open := opens[len(opens)-1]
		text = text[:open[0]] + text[endif[1]:]
	}
	return ifOpenRe.ReplaceAllString(text, "")
}
