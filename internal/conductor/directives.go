package conductor

import (
	"strings"

	"github.com/kandev/axiom/internal/agent"
)

// descriptionLimit keeps spawn descriptions display-friendly.
const descriptionLimit = 50

// ParseDirectives scans a planner response line by line for agent spawn
// directives (@shell, @search, @fileops, @coder). A @coder directive may be
// followed by a fenced code block whose header names the target path, either
// as "lang:path" or as a bare path containing a slash; the fenced content
// becomes the coder's "path|content" parameters. Truncated or malformed
// fences degrade gracefully: whatever was captured is used, and anything
// outside a directive stays free prose.
func ParseDirectives(response string, parentID agent.ID) []agent.SpawnRequest {
	var requests []agent.SpawnRequest

	lines := strings.Split(strings.TrimSuffix(response, "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		if cmd, ok := strings.CutPrefix(trimmed, "@shell "); ok {
			requests = append(requests, agent.SpawnRequest{
				Type:        agent.Shell(),
				Name:        "Shell",
				Description: truncate(cmd, descriptionLimit),
				Parameters:  cmd,
				ParentID:    parentID,
			})
			continue
		}

		if query, ok := strings.CutPrefix(trimmed, "@search "); ok {
			requests = append(requests, agent.SpawnRequest{
				Type:        agent.Search(),
				Name:        "Search",
				Description: "Searching: " + truncate(query, 40),
				Parameters:  query,
				ParentID:    parentID,
			})
			continue
		}

		if op, ok := strings.CutPrefix(trimmed, "@fileops "); ok {
			requests = append(requests, agent.SpawnRequest{
				Type:        agent.FileOps(),
				Name:        "FileOps",
				Description: truncate(op, descriptionLimit),
				Parameters:  op,
				ParentID:    parentID,
			})
			continue
		}

		if desc, ok := strings.CutPrefix(trimmed, "@coder "); ok {
			params, next := collectCodeBlock(lines, i+1, desc)
			requests = append(requests, agent.SpawnRequest{
				Type:        agent.Coder(),
				Name:        "Coder",
				Description: truncate(desc, descriptionLimit),
				Parameters:  params,
				ParentID:    parentID,
			})
			i = next - 1
		}
	}

	return requests
}

// collectCodeBlock consumes the fenced code block following a @coder line,
// if any. It stops at the closing fence, at an @-directive that comes before
// any fence opens, or at the end of the response; lines starting with @
// inside an open fence are block content. Returns the coder parameters and
// the index of the first unconsumed line.
func collectCodeBlock(lines []string, start int, desc string) (string, int) {
	var content strings.Builder
	var path string
	inBlock := false

	i := start
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case !inBlock && strings.HasPrefix(trimmed, "```"):
			inBlock = true
			header := strings.TrimLeft(trimmed, "`")
			if _, p, ok := strings.Cut(header, ":"); ok {
				path = p
			} else if strings.Contains(header, "/") {
				path = header
			}
			i++
		case inBlock && trimmed == "```":
			i++
			if path != "" {
				return path + "|" + content.String(), i
			}
			return desc, i
		case inBlock:
			content.WriteString(lines[i])
			content.WriteByte('\n')
			i++
		case strings.HasPrefix(trimmed, "@"):
			// Another directive before any fence: no code block here.
			if path != "" {
				return path + "|" + content.String(), i
			}
			return desc, i
		default:
			i++
		}
	}

	if path != "" {
		return path + "|" + content.String(), i
	}
	return desc, i
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
