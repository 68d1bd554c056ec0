// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Graph is an unordered set of triples describing exactly one agent at one
// point in time. The zero value is not usable; call NewGraph.
type Graph struct {
	triples map[Triple]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{triples: make(map[Triple]struct{})}
}

// Add inserts a triple. Duplicate inserts are no-ops (set semantics).
func (g *Graph) Add(t Triple) {
	g.triples[t] = struct{}{}
}

// Has reports whether the exact triple is present.
func (g *Graph) Has(t Triple) bool {
	_, ok := g.triples[t]
	return ok
}

// Len returns the number of distinct triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns all triples in a deterministic order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, 0, len(g.triples))
	for t := range g.triples {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// Range calls fn for every triple until fn returns false. Iteration order
// is unspecified.
func (g *Graph) Range(fn func(Triple) bool) {
	for t := range g.triples {
		if !fn(t) {
			return
		}
	}
}

// BySubject returns every triple whose subject is id.
func (g *Graph) BySubject(id ID) []Triple {
	var out []Triple
	for t := range g.triples {
		if t.Subject == id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// ByPredicate returns every triple with the given predicate.
func (g *Graph) ByPredicate(p ID) []Triple {
	var out []Triple
	for t := range g.triples {
		if t.Predicate == p {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// LiteralOf returns the textual form of the first literal found for
// (subject, predicate). ok is false when no such triple exists or the
// object is a node reference.
func (g *Graph) LiteralOf(subject, predicate ID) (string, bool) {
	for _, t := range g.BySubject(subject) {
		if t.Predicate == predicate && !t.Object.IsNode() {
			return t.Object.String(), true
		}
	}
	return "", false
}

// Subjects returns the distinct subject ids, sorted.
func (g *Graph) Subjects() []ID {
	seen := make(map[ID]struct{})
	for t := range g.triples {
		seen[t.Subject] = struct{}{}
	}
	out := make([]ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ErrNoAgentNode is returned by AgentNode when the graph has no node typed
// ClassAgent.
var ErrNoAgentNode = errors.New("graph contains no Agent-typed node")

// AgentNode returns the id of the single node typed ClassAgent. An error
// is returned when the graph has none or more than one, both of which
// violate the one-agent-per-graph invariant.
func (g *Graph) AgentNode() (ID, error) {
	var found []ID
	for t := range g.triples {
		if t.Predicate == PredicateType && t.Object.IsNode() && t.Object.Node == ClassAgent {
			found = append(found, t.Subject)
		}
	}
	switch len(found) {
	case 0:
		return "", ErrNoAgentNode
	case 1:
		return found[0], nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return "", fmt.Errorf("graph contains %d Agent-typed nodes (%v), want exactly 1", len(found), found)
}

// Clone returns an independent copy of the graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for t := range g.triples {
		out.triples[t] = struct{}{}
	}
	return out
}

// Equal reports whether both graphs hold exactly the same triple set.
func (g *Graph) Equal(other *Graph) bool {
	if g.Len() != other.Len() {
		return false
	}
	for t := range g.triples {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// Neighborhood walks node-valued edges outward from start, returning every
// reachable node id including start. Traversal carries a visited set and a
// depth bound so it terminates on cyclic graphs.
func (g *Graph) Neighborhood(start ID, maxDepth int) []ID {
	visited := map[ID]struct{}{start: {}}
	frontier := []ID{start}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []ID
		for _, id := range frontier {
			for t := range g.triples {
				if t.Subject != id || !t.Object.IsNode() {
					continue
				}
				target := t.Object.Node
				if _, ok := visited[target]; ok {
					continue
				}
				visited[target] = struct{}{}
				next = append(next, target)
			}
		}
		frontier = next
	}
	out := make([]ID, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// wireTriple is the JSON shape used for persistence.
type wireTriple struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
}

func kindName(k ObjectKind) string {
	switch k {
	case KindNode:
		return "node"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

// MarshalJSON renders the graph as a deterministically ordered triple list.
func (g *Graph) MarshalJSON() ([]byte, error) {
	wire := make([]wireTriple, 0, g.Len())
	for _, t := range g.Triples() {
		wire = append(wire, wireTriple{
			Subject:   string(t.Subject),
			Predicate: string(t.Predicate),
			Kind:      kindName(t.Object.Kind),
			Value:     t.Object.String(),
		})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON restores a graph serialized by MarshalJSON.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var wire []wireTriple
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	g.triples = make(map[Triple]struct{}, len(wire))
	for _, w := range wire {
		obj, err := parseObject(w.Kind, w.Value)
		if err != nil {
			return err
		}
		g.Add(Triple{Subject: ID(w.Subject), Predicate: ID(w.Predicate), Object: obj})
	}
	return nil
}

func parseObject(kind, value string) (Object, error) {
	switch kind {
	case "node":
		return NodeObject(ID(value)), nil
	case "string":
		return StringObject(value), nil
	case "int":
		var v int64
		if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
			return Object{}, fmt.Errorf("parse int literal %q: %w", value, err)
		}
		return IntObject(v), nil
	case "float":
		var v float64
		if _, err := fmt.Sscanf(value, "%g", &v); err != nil {
			return Object{}, fmt.Errorf("parse float literal %q: %w", value, err)
		}
		return FloatObject(v), nil
	case "bool":
		return BoolObject(value == "true"), nil
	}
	return Object{}, fmt.Errorf("unknown object kind %q", kind)
}
