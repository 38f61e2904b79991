package queue

import "strings"

// ParseFrontmatter splits content into a metadata field map and the body
// text. A metadata block is bounded by the first two "---" fence lines;
// anything after the second fence is body, including further fences.
//
// The parser is deliberately forgiving: no block, a malformed block, or
// junk lines inside the block all degrade to fewer fields, never to an
// error. Queue items come from many writers and some of them get the
// format wrong.
func ParseFrontmatter(content string) (map[string]string, string) {
	fields := map[string]string{}

	if !strings.HasPrefix(content, "---") {
		return fields, content
	}

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		// Opening fence with no closing fence: treat the whole thing as body.
		return fields, content
	}

	for _, line := range strings.Split(parts[1], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		fields[key] = value
	}

	return fields, parts[2]
}
