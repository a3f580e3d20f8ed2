// Command archcheck fails when a package imports across a forbidden layer
// boundary. Run it from the module root.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"golang.org/x/tools/go/packages"
)

const modulePrefix = "mova-bot/"

// layer lists the module-relative prefixes a package tree may not import.
type layer struct {
	tree    string
	mustNot []string
	why     string
}

var layers = []layer{
	{
		tree:    "pkg/mova",
		mustNot: []string{"internal/", "modules/", "cmd/"},
		why:     "pkg/mova must only depend on the standard library",
	},
	{
		tree:    "internal/kernel",
		mustNot: []string{"internal/driver", "internal/catalogue", "modules/"},
		why:     "internal/kernel must stay platform and content agnostic",
	},
	{
		tree:    "internal/catalogue",
		mustNot: []string{"internal/driver", "internal/kernel", "internal/upstream", "modules/"},
		why:     "internal/catalogue must not know about transports or the upstream client",
	},
	{
		tree:    "internal/cache",
		mustNot: []string{"internal/catalogue", "internal/driver", "internal/kernel", "modules/"},
		why:     "internal/cache must not depend on its callers",
	},
	{
		tree:    "internal/driver",
		mustNot: []string{"internal/kernel", "internal/catalogue", "internal/stats", "modules/"},
		why:     "internal/driver must only talk to modules through pkg/mova",
	},
	{
		tree:    "modules/",
		mustNot: []string{"internal/kernel", "internal/driver", "internal/admin", "cmd/"},
		why:     "modules/* must reach the kernel and drivers through pkg/mova services",
	},
}

// importEdge is one import, test imports included.
type importEdge struct {
	from string
	to   string
}

func main() {
	edges, err := loadEdges()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	breaches := findBreaches(edges)
	if len(breaches) == 0 {
		fmt.Println("arch-check: passed")
		return
	}

	fmt.Println("arch-check: architecture violations:")
	for _, line := range breaches {
		fmt.Println("  - " + line)
	}
	os.Exit(1)
}

func loadEdges() ([]importEdge, error) {
	loaded, err := packages.Load(&packages.Config{
		Mode:  packages.NeedName | packages.NeedImports,
		Tests: true,
	}, "./...")
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if packages.PrintErrors(loaded) > 0 {
		return nil, fmt.Errorf("packages failed to load")
	}

	var edges []importEdge
	for _, pkg := range loaded {
		// Generated test mains import every test variant; skip them.
		if strings.HasSuffix(pkg.PkgPath, ".test") {
			continue
		}
		for imported := range pkg.Imports {
			edges = append(edges, importEdge{from: pkg.PkgPath, to: imported})
		}
	}

	return edges, nil
}

// findBreaches returns each forbidden edge once, sorted.
func findBreaches(edges []importEdge) []string {
	found := make(map[string]struct{})
	for _, edge := range edges {
		if why := breach(edge.from, edge.to); why != "" {
			found[fmt.Sprintf("%s -> %s (%s)", edge.from, edge.to, why)] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(found))
}

// breach explains why from may not import to, or returns "".
func breach(from, to string) string {
	from, fromOK := strings.CutPrefix(from, modulePrefix)
	to, toOK := strings.CutPrefix(to, modulePrefix)
	if !fromOK || !toOK {
		return ""
	}

	for _, rule := range layers {
		if !strings.HasPrefix(from, rule.tree) {
			continue
		}
		if slices.ContainsFunc(rule.mustNot, func(prefix string) bool { return strings.HasPrefix(to, prefix) }) {
			return rule.why
		}
	}

	return ""
}
