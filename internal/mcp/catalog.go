package mcp

import (
	"log/slog"
	"strings"
)

// writeVerbs is the heuristic fallback for classifying tools whose kind tag
// is absent: any of these substrings in the name marks the tool mutating.
var writeVerbs = []string{"create", "update", "delete", "edit", "publish", "trash"}

// Tool is a locally invocable operation translated from the remote catalog.
type Tool struct {
	Name        string
	Description string
	InputSchema *Schema
	Write       bool
}

// IsWriteTool classifies a remote tool as mutating: declared kind "action",
// or a write verb in its name when kind is absent.
func IsWriteTool(t RemoteTool) bool {
	if t.Kind != "" {
		return t.Kind == "action"
	}
	lower := strings.ToLower(t.Name)
	for _, verb := range writeVerbs {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}

// BuildCatalog assembles the exposed tool list. Write-classified tools are
// excluded entirely when writeMode is false, not merely blocked at call time.
// allow, when non-nil, restricts the catalog to the named tools. A malformed
// entry is skipped with a log line; it never fails the batch.
func BuildCatalog(remote []RemoteTool, writeMode bool, allow []string) []Tool {
	var allowed map[string]bool
	if allow != nil {
		allowed = make(map[string]bool, len(allow))
		for _, name := range allow {
			allowed[name] = true
		}
	}

	catalog := make([]Tool, 0, len(remote))
	for _, rt := range remote {
		if rt.Name == "" {
			slog.Warn("tool catalog: skipping unnamed tool entry")
			continue
		}
		if allowed != nil && !allowed[rt.Name] {
			continue
		}

		write := IsWriteTool(rt)
		if write && !writeMode {
			continue
		}

		catalog = append(catalog, Tool{
			Name:        rt.Name,
			Description: rt.Description,
			InputSchema: TranslateSchema(rt.InputSchema),
			Write:       write,
		})
	}
	return catalog
}
