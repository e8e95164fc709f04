package templates

import (
	"sort"
	tmplparse "text/template/parse"
)

// rootRefs lists the key paths a template reads from its top-level data: fields
// on dot outside with/range bodies, and $ paths anywhere.
func rootRefs(trees []*tmplparse.Tree) [][]string {
	seen := map[string]bool{}
	var refs [][]string
	add := func(path []string) {
		if len(path) == 0 {
			return
		}
		key := ""
		for _, p := range path {
			key += "." + p
		}
		if seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, append([]string(nil), path...))
	}
	for _, t := range trees {
		if t != nil && t.Root != nil {
			walk(t.Root, true, add)
		}
	}
	// deepest paths first so parents are created as maps, not strings
	sort.SliceStable(refs, func(i, j int) bool { return len(refs[i]) > len(refs[j]) })
	return refs
}

func walk(node tmplparse.Node, atRoot bool, add func([]string)) {
	switch n := node.(type) {
	case *tmplparse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walk(c, atRoot, add)
		}
	case *tmplparse.ActionNode:
		walk(n.Pipe, atRoot, add)
	case *tmplparse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			walk(c, atRoot, add)
		}
	case *tmplparse.CommandNode:
		for _, a := range n.Args {
			walk(a, atRoot, add)
		}
	case *tmplparse.FieldNode:
		if atRoot {
			add(n.Ident)
		}
	case *tmplparse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			add(n.Ident[1:])
		}
	case *tmplparse.ChainNode:
		walk(n.Node, atRoot, add)
	case *tmplparse.IfNode:
		walk(n.Pipe, atRoot, add)
		walk(n.List, atRoot, add)
		walk(n.ElseList, atRoot, add)
	case *tmplparse.WithNode:
		walk(n.Pipe, atRoot, add)
		walk(n.List, false, add)
		walk(n.ElseList, atRoot, add)
	case *tmplparse.RangeNode:
		walk(n.Pipe, atRoot, add)
		walk(n.List, false, add)
		walk(n.ElseList, atRoot, add)
	case *tmplparse.TemplateNode:
		walk(n.Pipe, atRoot, add)
	}
}

// withDefaults returns a copy of data in which every path in refs that the
// caller left out resolves to "". Values that are not maps are left alone.
// Maps along a path are copied before they are filled, so data is never modified.
func withDefaults(data map[string]interface{}, refs [][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+len(refs))
	for k, v := range data {
		out[k] = v
	}
	for _, path := range refs {
		fill(out, path)
	}
	return out
}

func fill(m map[string]interface{}, path []string) {
	for i, key := range path {
		last := i == len(path)-1
		v, ok := m[key]
		if !ok {
			if last {
				m[key] = ""
				return
			}
			next := map[string]interface{}{}
			m[key] = next
			m = next
			continue
		}
		if last {
			return
		}
		nested, isMap := v.(map[string]interface{})
		if !isMap {
			return
		}
		cp := make(map[string]interface{}, len(nested)+1)
		for k, nv := range nested {
			cp[k] = nv
		}
		m[key] = cp
		m = cp
	}
}
