// Package catalogs maps block type names to placement rule families, item ids and stack
// sizes. The catalog is loaded once at startup and passed to whoever needs it.
package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// FamilyAir marks block types that produce no rule at all.
const FamilyAir = "air"

// DefaultFamily is used for names no entry matches.
const DefaultFamily = "simple"

//go:embed default_rules.json
var defaultRules []byte

// RuleDef is one catalog entry. Match is an exact block name, a "*suffix" or a
// "prefix*" pattern; namespaces ("minecraft:") are stripped before matching.
type RuleDef struct {
	Match  string            `json:"match"`
	Family string            `json:"family"`
	Item   string            `json:"item,omitempty"`
	Stack  int               `json:"stack,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Entry is a resolved catalog lookup.
type Entry struct {
	Name   string
	Family string
	Item   string
	Stack  int
	Params map[string]string
}

type RuleCatalog struct {
	exact  map[string]RuleDef
	suffix []RuleDef
	prefix []RuleDef
	stacks map[string]int

	Digest string
	// Raw is the catalog file as read.
	Raw []byte
}

// Default returns the embedded catalog.
func Default() (*RuleCatalog, error) {
	c, err := Parse(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("default_rules.json: %w", err)
	}
	return c, nil
}

// Load reads a catalog file. An empty path loads the embedded default.
func Load(path string) (*RuleCatalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*RuleCatalog, error) {
	var defs []RuleDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	c := &RuleCatalog{
		exact:  map[string]RuleDef{},
		stacks: map[string]int{},
		Digest: sha256Hex(raw),
		Raw:    raw,
	}
	for i, d := range defs {
		if d.Match == "" || d.Family == "" {
			return nil, fmt.Errorf("entry %d: empty match or family", i)
		}
		if d.Stack < 0 {
			return nil, fmt.Errorf("entry %q: negative stack", d.Match)
		}
		switch {
		case strings.HasPrefix(d.Match, "*"):
			d.Match = strings.TrimPrefix(d.Match, "*")
			c.suffix = append(c.suffix, d)
		case strings.HasSuffix(d.Match, "*"):
			d.Match = strings.TrimSuffix(d.Match, "*")
			c.prefix = append(c.prefix, d)
		default:
			if _, dup := c.exact[d.Match]; dup {
				return nil, fmt.Errorf("entry %q: duplicate", d.Match)
			}
			c.exact[d.Match] = d
		}
		if d.Item != "" && d.Stack > 0 {
			c.stacks[d.Item] = d.Stack
		}
	}
	// Longest pattern wins; ties keep file order.
	byLen := func(ds []RuleDef) {
		sort.SliceStable(ds, func(i, j int) bool { return len(ds[i].Match) > len(ds[j].Match) })
	}
	byLen(c.suffix)
	byLen(c.prefix)
	return c, nil
}

// Resolve looks name up: exact entries first, then suffix patterns, then prefix
// patterns. Unknown names become simple blocks whose item is the name itself.
func (c *RuleCatalog) Resolve(name string) Entry {
	short := stripNamespace(name)
	def, ok := c.exact[short]
	if !ok {
		def, ok = c.match(short)
	}
	if !ok {
		def = RuleDef{Family: DefaultFamily}
	}
	e := Entry{Name: short, Family: def.Family, Item: def.Item, Stack: def.Stack, Params: def.Params}
	if e.Item == "" {
		e.Item = short
	}
	return e
}

func (c *RuleCatalog) match(name string) (RuleDef, bool) {
	for _, d := range c.suffix {
		if strings.HasSuffix(name, d.Match) {
			return d, true
		}
	}
	for _, d := range c.prefix {
		if strings.HasPrefix(name, d.Match) {
			return d, true
		}
	}
	return RuleDef{}, false
}

// StackSize returns the stack size an entry declared for item, or 0 when none did.
func (c *RuleCatalog) StackSize(item string) int {
	if n, ok := c.stacks[item]; ok {
		return n
	}
	if e := c.Resolve(item); e.Item == stripNamespace(item) {
		return e.Stack
	}
	return 0
}

func stripNamespace(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
