package drive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GetSection returns the body of the heading matching section in the named
// file within the drive, from the heading up to (but not including) the next
// heading of equal-or-shallower depth, trimmed. Used as the mq-absent
// fallback for the get_section tool (spec.md §4.E).
func (d Drive) GetSection(fileName, section string) (string, error) {
	path := d.Path
	if d.IsDir {
		path = filepath.Join(d.Path, fileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("drive: failed reading %s: %w", path, err)
	}
	_, body := splitFrontMatter(string(data))
	return extractSection(body, section)
}

var headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*\S)\s*$`)

func extractSection(body, section string) (string, error) {
	target := regexp.MustCompile(`^#{1,6}\s+` + regexp.QuoteMeta(section) + `\s*$`)
	lines := strings.Split(body, "\n")

	startIdx, startDepth := -1, 0
	for i, line := range lines {
		if target.MatchString(strings.TrimRight(line, "\r")) {
			m := headingRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
			startIdx = i
			startDepth = len(m[1])
			break
		}
	}
	if startIdx < 0 {
		return "", fmt.Errorf("drive: section %q not found", section)
	}

	endIdx := len(lines)
	for i := startIdx + 1; i < len(lines); i++ {
		m := headingRe.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m != nil && len(m[1]) <= startDepth {
			endIdx = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[startIdx:endIdx], "\n")), nil
}
