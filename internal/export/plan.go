package export

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dusk-indust/roadmap/internal/graph"
)

// CycleError is returned by StudyPlan when prerequisites form a cycle.
type CycleError struct {
	Nodes []string // ids of courses that could not be scheduled
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("prerequisite cycle among %d courses: %s", len(e.Nodes), strings.Join(e.Nodes, ", "))
}

// StudyPlan layers the roadmap into terms: every course appears in the
// first term after all of its prerequisites. An edge's source is a
// prerequisite of its target. Self-loops are ignored. Within a term
// courses keep their graph order.
func StudyPlan(g graph.Graph) ([][]graph.Node, error) {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}

	indegree := make([]int, len(g.Nodes))
	next := make([][]int, len(g.Nodes))
	seen := make(map[[2]int]bool, len(g.Edges))
	for _, e := range g.Edges {
		s, ok1 := index[e.Source]
		t, ok2 := index[e.Target]
		if !ok1 || !ok2 || s == t || seen[[2]int{s, t}] {
			continue
		}
		seen[[2]int{s, t}] = true
		next[s] = append(next[s], t)
		indegree[t]++
	}

	var terms [][]graph.Node
	var frontier []int
	for i := range g.Nodes {
		if indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}
	placed := 0
	for len(frontier) > 0 {
		term := make([]graph.Node, 0, len(frontier))
		var upcoming []int
		for _, i := range frontier {
			term = append(term, g.Nodes[i])
			for _, t := range next[i] {
				indegree[t]--
				if indegree[t] == 0 {
					upcoming = append(upcoming, t)
				}
			}
		}
		placed += len(term)
		terms = append(terms, term)
		slices.Sort(upcoming)
		frontier = upcoming
	}

	if placed < len(g.Nodes) {
		cyc := &CycleError{}
		for i, n := range g.Nodes {
			if indegree[i] > 0 {
				cyc.Nodes = append(cyc.Nodes, n.ID)
			}
		}
		return terms, cyc
	}
	return terms, nil
}

// WritePlan writes the study plan as a Markdown checklist.
func WritePlan(w io.Writer, title string, g graph.Graph) error {
	terms, err := StudyPlan(g)
	if err != nil {
		return err
	}
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}
	for i, term := range terms {
		fmt.Fprintf(&sb, "## Term %d\n\n", i+1)
		for _, n := range term {
			box := " "
			if n.Data.Completed {
				box = "x"
			}
			label := n.Data.Label
			if label == "" {
				label = n.ID
			}
			if n.Data.Code != "" {
				label = fmt.Sprintf("**%s** %s", n.Data.Code, label)
			}
			if n.Data.Credits > 0 {
				label = fmt.Sprintf("%s (%g cr)", label, float64(n.Data.Credits))
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", box, label)
		}
		sb.WriteString("\n")
	}
	_, err = io.WriteString(w, sb.String())
	return err
}
