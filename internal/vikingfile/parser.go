package vikingfile

import (
	"regexp"
	"strings"
)

// headerPattern matches a section header line: a bracketed dotted digit path
// and section name, optionally followed by an inline key=value pair.
var headerPattern = regexp.MustCompile(`^\[([0-9]+(?:\.[0-9]+)*)\s*-\s*([^\]]+)\](.*)$`)

const continuationMarker = `\`

// Parse builds a Document from file content whose line endings have already
// been normalized to "\n". Unrecognized lines are ignored, an empty or
// comment-only input yields an empty document.
func Parse(content string) *Document {
	root := NewSection()
	current := root

	for _, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed) {
			continue
		}

		if m := headerPattern.FindStringSubmatch(trimmed); m != nil {
			current = openSection(root, m[1], strings.TrimSpace(m[2]))
			// a key=value pair may trail the closing bracket on the same line
			if rest := strings.TrimSpace(m[3]); rest != "" {
				if key, value, ok := splitKeyValue(rest); ok {
					current.Set(key, NewLeaf(value))
				}
			}
			continue
		}

		if key, value, ok := splitKeyValue(trimmed); ok {
			current.Set(key, NewLeaf(value))
		}
	}

	return &Document{Root: root}
}

// splitLines breaks content into logical lines, joining lines ending in the
// continuation marker with their successor.
func splitLines(content string) []string {
	raw := strings.Split(content, "\n")
	lines := make([]string, 0, len(raw))

	pending := ""
	for _, line := range raw {
		if strings.HasSuffix(strings.TrimRight(line, " \t"), continuationMarker) {
			joined := strings.TrimRight(line, " \t")
			pending += strings.TrimSuffix(joined, continuationMarker)
			continue
		}
		lines = append(lines, pending+line)
		pending = ""
	}
	if pending != "" {
		lines = append(lines, pending)
	}

	return lines
}

// isComment reports whether a trimmed line is a comment marker the format
// uses for annotations inside exports.
func isComment(line string) bool {
	return strings.HasPrefix(line, ";") || strings.HasPrefix(line, "...")
}

// openSection creates or reuses the nested section addressed by the dotted
// path and section name. Re-occurring paths merge into the existing node.
func openSection(root *Node, dottedPath, name string) *Node {
	node := root
	for _, segment := range strings.Split(dottedPath, ".") {
		node = node.ensureSection(segment)
	}
	return node.ensureSection(name)
}

// splitKeyValue splits a "key=value" line on the first '='. Lines without
// one are not key/value records.
func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
