package agent

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Argument normalization repairs the mistakes LLMs commonly make when
// calling tools: synonym action names, synonym parameter names, and a
// search query where a URL was expected. Normalization never invents
// values; it only renames and rewrites what the model sent.

// actionSynonyms maps, per tool, wrong action names to canonical ones.
var actionSynonyms = map[string]map[string]string{
	"file": {
		"save":   "write",
		"create": "write",
		"remove": "delete",
		"ls":     "list",
		"check":  "exists",
		"info":   "stat",
	},
	"browser": {
		"visit":   "navigate",
		"open":    "navigate",
		"go":      "navigate",
		"goto":    "navigate",
		"search":  "navigate",
		"capture": "screenshot",
		"js":      "evaluate",
		"html":    "content",
	},
	"memory": {
		"save":   "set",
		"store":  "set",
		"remove": "delete",
		"recall": "search",
		"find":   "search",
	},
}

// paramSynonyms maps, per tool, wrong parameter names to canonical ones.
// A synonym is applied only when the canonical key is absent.
var paramSynonyms = map[string]map[string]string{
	"file": {
		"file_path": "path",
		"filepath":  "path",
		"filename":  "path",
		"file":      "path",
		"text":      "content",
		"data":      "content",
	},
	"shell": {
		"cmd":     "command",
		"script":  "command",
		"timeout": "timeout_seconds",
	},
	"web": {
		"website": "url",
		"link":    "url",
		"uri":     "url",
	},
	"browser": {
		"website": "url",
		"link":    "url",
		"target":  "selector",
		"js":      "script",
	},
	"code": {
		"snippet": "code",
		"script":  "code",
		"source":  "code",
		"lang":    "language",
	},
	"wait": {
		"duration": "seconds",
		"secs":     "seconds",
		"time":     "seconds",
	},
	"memory": {
		"name": "key",
		"k":    "key",
		"v":    "value",
	},
}

// Normalize applies the synonym tables for a known tool and returns the
// repaired arguments plus a note per applied rewrite. Unknown tools and
// unparseable arguments pass through untouched.
func Normalize(tool string, args json.RawMessage) (json.RawMessage, []string) {
	var obj map[string]any
	if err := json.Unmarshal(args, &obj); err != nil || obj == nil {
		return args, nil
	}

	var notes []string

	if synonyms, ok := paramSynonyms[tool]; ok {
		for wrong, canonical := range synonyms {
			v, present := obj[wrong]
			if !present {
				continue
			}
			if _, taken := obj[canonical]; taken {
				continue
			}
			obj[canonical] = v
			delete(obj, wrong)
			notes = append(notes, fmt.Sprintf("%s: renamed param %q to %q", tool, wrong, canonical))
		}
	}

	// An array where a scalar URL was expected: take the first element.
	if raw, ok := obj["url"].([]any); ok && len(raw) > 0 {
		if first, ok := raw[0].(string); ok {
			obj["url"] = first
			notes = append(notes, fmt.Sprintf("%s: took first of %d urls", tool, len(raw)))
		}
	}

	if synonyms, ok := actionSynonyms[tool]; ok {
		if action, ok := obj["action"].(string); ok {
			lower := strings.ToLower(strings.TrimSpace(action))
			if canonical, found := synonyms[lower]; found {
				// search → navigate needs a URL derived from the query.
				if tool == "browser" && lower == "search" {
					if _, hasURL := obj["url"]; !hasURL {
						if query := firstString(obj, "query", "q", "text"); query != "" {
							obj["url"] = "https://www.google.com/search?q=" + url.QueryEscape(query)
							notes = append(notes, fmt.Sprintf("browser: derived search url from query %q", query))
						}
					}
				}
				obj["action"] = canonical
				notes = append(notes, fmt.Sprintf("%s: renamed action %q to %q", tool, action, canonical))
			} else if lower != action {
				obj["action"] = lower
			}
		}
	}

	if len(notes) == 0 {
		return args, nil
	}
	repaired, err := json.Marshal(obj)
	if err != nil {
		return args, nil
	}
	return repaired, notes
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
