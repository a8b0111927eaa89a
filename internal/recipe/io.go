package recipe

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/renameio"
)

// stateVarNames are persisted by the core itself (spec §6); when set_var
// inserts a variable that doesn't exist yet, it prefers to land right
// after the last of these already present in the file.
var stateVarNames = map[string]bool{
	"installed":         true,
	"installed_version": true,
	"installed_at":      true,
	"installed_files":   true,
	"installed_as_dep":  true,
}

// metadataVarNames are the remaining recognized top-level variables; a new
// variable lands after the last of these when no state variable is present.
var metadataVarNames = map[string]bool{
	"name":        true,
	"version":     true,
	"description": true,
	"license":     true,
	"homepage":    true,
	"deps":        true,
	"build_deps":  true,
}

func declRegexp(name string) *regexp.Regexp {
	return regexp.MustCompile(`^(\s*)` + regexp.QuoteMeta(name) + `\b\s*=\s*(.*)$`)
}

// stripTrailingComment removes a trailing "//" comment and any "/* ... */"
// block comments from a value's source text, honoring quoted strings so a
// "//" or "/*" inside a string literal is not mistaken for a comment.
func stripTrailingComment(s string) string {
	var b strings.Builder
	inString := false
	var quote byte
	i := 0
	for i < len(s) {
		c := s[i]

		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			if c == quote {
				inString = false
			}
			i++
			continue
		}

		if c == '"' || c == '\'' {
			inString = true
			quote = c
			b.WriteByte(c)
			i++
			continue
		}

		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			break
		}

		if c == '/' && i+1 < len(s) && s[i+1] == '*' {
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				break
			}
			i += 2 + end + 2
			continue
		}

		b.WriteByte(c)
		i++
	}
	return strings.TrimSpace(b.String())
}

func stripTrailingSemicolon(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

// GetVar scans path line by line for a top-level declaration of name
// without executing the file, returning (value, found, error).
func GetVar(path, name string) (Value, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	re := declRegexp(name)
	for _, line := range strings.Split(string(data), "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := stripTrailingSemicolon(stripTrailingComment(m[2]))
		v, err := ParseValue(raw)
		if err != nil {
			return Value{}, false, fmt.Errorf("%s: parsing %s: %w", path, name, err)
		}
		return v, true, nil
	}
	return Value{}, false, nil
}

// SetVar sets a single top-level variable and persists the file atomically.
// It is a thin wrapper over SetVars for callers that only need to change
// one variable.
func SetVar(path, name string, value Value) error {
	return SetVars(path, map[string]Value{name: value})
}

// SetVars applies every update to path's top-level declarations in a single
// atomic rewrite: existing declarations are replaced in place (preserving
// indentation), new ones are inserted after the last existing state
// variable, or failing that the last metadata variable, or failing that at
// the end of the file. The result is written via a temp-file-in-same-dir +
// fsync + rename so readers never observe a partially written recipe.
func SetVars(path string, updates map[string]Value) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	trailingNewline := strings.HasSuffix(string(data), "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}

	remaining := make(map[string]Value, len(updates))
	for k, v := range updates {
		remaining[k] = v
	}

	lastStateIdx, lastMetaIdx := -1, -1
	for i, line := range lines {
		name, ok := declaredName(line)
		if !ok {
			continue
		}
		if stateVarNames[name] {
			lastStateIdx = i
		} else if metadataVarNames[name] {
			lastMetaIdx = i
		}

		if v, found := remaining[name]; found {
			indent := declRegexp(name).FindStringSubmatch(line)[1]
			lines[i] = indent + name + " = " + v.Encode() + ";"
			delete(remaining, name)
		}
	}

	if len(remaining) > 0 {
		insertAt := lastStateIdx
		if insertAt < 0 {
			insertAt = lastMetaIdx
		}

		// Insert in a stable order so repeated calls with the same update
		// set produce identical output.
		names := make([]string, 0, len(remaining))
		for name := range remaining {
			names = append(names, name)
		}
		sortStrings(names)

		var toInsert []string
		for _, name := range names {
			toInsert = append(toInsert, name+" = "+remaining[name].Encode()+";")
		}

		if insertAt < 0 {
			lines = append(lines, toInsert...)
		} else {
			head := append([]string{}, lines[:insertAt+1]...)
			tail := append([]string{}, lines[insertAt+1:]...)
			lines = append(head, append(toInsert, tail...)...)
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline || out != "" {
		out += "\n"
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}

	if err := renameio.WriteFile(path, []byte(out), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// declaredName reports the variable name a line declares, if any, by
// checking it against every known variable name. Unknown variable names
// (a recipe author's own scratch globals) are intentionally not matched
// here; GetVar/SetVar only ever operate on a name the caller names
// explicitly, so this is only used to find insertion anchors.
func declaredName(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	for name := range stateVarNames {
		if declRegexp(name).MatchString(line) {
			return name, true
		}
	}
	for name := range metadataVarNames {
		if declRegexp(name).MatchString(line) {
			return name, true
		}
	}
	_ = trimmed
	return "", false
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
