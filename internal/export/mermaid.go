package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/roadmap/internal/graph"
)

// Mermaid produces a Mermaid graph TD diagram of a roadmap. Courses are
// grouped into subgraphs by category; arrow connections become arrows and
// plain connections become lines. Completed courses get the "done" class.
func Mermaid(g graph.Graph) string {
	// Mermaid ids must be alphanumeric; node ids are not.
	ids := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[n.ID] = fmt.Sprintf("N%d", i)
	}

	byCategory := make(map[string][]graph.Node)
	var uncategorized []graph.Node
	for _, n := range g.Nodes {
		if c := strings.TrimSpace(n.Data.Category); c != "" {
			byCategory[c] = append(byCategory[c], n)
		} else {
			uncategorized = append(uncategorized, n)
		}
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, c := range categories {
		fmt.Fprintf(&sb, "  subgraph C%d[\"%.40s\"]\n", i, escape(c))
		for _, n := range byCategory[c] {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", ids[n.ID], nodeLabel(n))
		}
		sb.WriteString("  end\n")
	}
	for _, n := range uncategorized {
		fmt.Fprintf(&sb, "  %s[\"%s\"]\n", ids[n.ID], nodeLabel(n))
	}

	for _, e := range g.Edges {
		src, ok1 := ids[e.Source]
		tgt, ok2 := ids[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		link := "-->"
		if e.Data.ConnectionType == graph.ConnectionNone {
			link = "---"
		}
		fmt.Fprintf(&sb, "  %s %s %s\n", src, link, tgt)
	}

	var done []string
	for _, n := range g.Nodes {
		if n.Data.Completed {
			done = append(done, ids[n.ID])
		}
	}
	if len(done) > 0 {
		sb.WriteString("  classDef done fill:#dcfce7,stroke:#16a34a\n")
		fmt.Fprintf(&sb, "  class %s done\n", strings.Join(done, ","))
	}

	return sb.String()
}

func nodeLabel(n graph.Node) string {
	label := n.Data.Label
	if label == "" {
		label = n.ID
	}
	if n.Data.Code != "" {
		label = n.Data.Code + ": " + label
	}
	return escape(label)
}

// escape makes s safe inside a quoted Mermaid label.
func escape(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}
