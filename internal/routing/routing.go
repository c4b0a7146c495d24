// Package routing resolves an alias or selector string, and an optional
// directive line, into an ordered non-empty list of selectors.
package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/loopwire/relay/internal/selector"
)

// Entry is one routing-table value: an ordered list of selector strings.
// A single-selector alias is just a one-element list.
type Entry struct {
	Selectors []string
}

// Table is the resolved, validated alias -> ordered-selector-list mapping.
// Resolve only reads; Replace swaps the whole mapping under the write lock.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// RouteError reports an unknown alias or an invalid config-time entry.
type RouteError struct {
	Alias   string
	Reason  string
	Aliases []string
}

func (e *RouteError) Error() string {
	if len(e.Aliases) == 0 {
		return fmt.Sprintf("routing: %s: %s", e.Alias, e.Reason)
	}
	return fmt.Sprintf("routing: %s: %s (available: %s)", e.Alias, e.Reason, strings.Join(e.Aliases, ", "))
}

// NewTable validates raw and builds a Table. Validation rejects any entry
// whose selector strings are not themselves selectors (aliases may not
// reference other aliases — resolution never recurses).
func NewTable(raw map[string][]string) (*Table, error) {
	entries := make(map[string]Entry, len(raw))
	for alias, selectors := range raw {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		if len(selectors) == 0 {
			return nil, &RouteError{Alias: alias, Reason: "alias has no selectors"}
		}
		for _, s := range selectors {
			s = strings.TrimSpace(s)
			if !selector.IsSelector(s) {
				return nil, &RouteError{Alias: alias, Reason: fmt.Sprintf("entry %q is not a selector — alias-of-alias is forbidden", s)}
			}
			if _, err := selector.Parse(s); err != nil {
				return nil, &RouteError{Alias: alias, Reason: err.Error()}
			}
		}
		entries[alias] = Entry{Selectors: append([]string(nil), selectors...)}
	}
	return &Table{entries: entries}, nil
}

// Replace atomically swaps the table's contents, used by the SIGHUP reload
// path. The new table must already be validated via NewTable.
func (t *Table) Replace(next *Table) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = next.snapshot()
}

func (t *Table) snapshot() map[string]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Aliases returns the sorted set of known alias keys, used in "unknown alias"
// error messages and the /v1/models listing.
func (t *Table) Aliases() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var directivePattern = regexp.MustCompile(`^<!--\s*(.+?)\s*-->$`)

// DirectiveFrom extracts the routing override from the first non-empty line
// of a system prompt, if that line matches the "<!-- selector-or-alias -->"
// directive pattern. It is intentionally narrow: only the first non-empty
// line is ever examined.
func DirectiveFrom(systemPromptFirstLine string) (string, bool) {
	line := strings.TrimSpace(systemPromptFirstLine)
	if line == "" {
		return "", false
	}
	m := directivePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Resolve produces the ordered non-empty list of selectors for input, which
// is either a directive value, an inline selector, or an alias key.
func (t *Table) Resolve(input string) ([]selector.Selector, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, &RouteError{Alias: input, Reason: "empty model/selector input"}
	}

	if selector.IsSelector(input) {
		s, err := selector.Parse(input)
		if err != nil {
			return nil, err
		}
		return []selector.Selector{s}, nil
	}

	t.mu.RLock()
	entry, ok := t.entries[input]
	t.mu.RUnlock()
	if !ok {
		return nil, &RouteError{Alias: input, Reason: "unknown alias", Aliases: t.Aliases()}
	}

	out := make([]selector.Selector, 0, len(entry.Selectors))
	for _, raw := range entry.Selectors {
		s, err := selector.Parse(raw)
		if err != nil {
			// Already validated at load time; a failure here means the
			// table was mutated with an invalid entry after the fact.
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
