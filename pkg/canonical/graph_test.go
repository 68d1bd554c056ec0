package canonical

import (
	"encoding/json"
	"testing"
)

func sampleGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	agent := AgentID("ada")
	g.Add(NewNodeTriple(agent, PredicateType, ClassAgent))
	g.Add(MustLiteral(agent, PredicateName, "Ada"))
	g.Add(MustLiteral(agent, PredicateVerbose, true))
	tool := ToolID("ada", "search")
	g.Add(NewNodeTriple(tool, PredicateType, ClassTool))
	g.Add(NewNodeTriple(agent, PredicateTool, tool))
	g.Add(MustLiteral(tool, PredicateToolName, "search"))
	return g
}

func TestGraphSetSemantics(t *testing.T) {
	g := NewGraph()
	tr := MustLiteral(AgentID("a"), PredicateName, "A")
	g.Add(tr)
	g.Add(tr)
	if g.Len() != 1 {
		t.Fatalf("duplicate insert changed cardinality: got %d", g.Len())
	}
	if !g.Has(tr) {
		t.Fatal("expected triple to be present")
	}
}

func TestAgentNodeInvariant(t *testing.T) {
	g := sampleGraph(t)
	node, err := g.AgentNode()
	if err != nil {
		t.Fatalf("AgentNode failed: %v", err)
	}
	if node != AgentID("ada") {
		t.Fatalf("unexpected agent node %s", node)
	}

	if _, err := NewGraph().AgentNode(); err == nil {
		t.Fatal("expected error for graph without agent node")
	}

	g.Add(NewNodeTriple(AgentID("other"), PredicateType, ClassAgent))
	if _, err := g.AgentNode(); err == nil {
		t.Fatal("expected error for graph with two agent nodes")
	}
}

func TestLiteralOf(t *testing.T) {
	g := sampleGraph(t)
	name, ok := g.LiteralOf(AgentID("ada"), PredicateName)
	if !ok || name != "Ada" {
		t.Fatalf("LiteralOf = %q, %v", name, ok)
	}
	verbose, ok := g.LiteralOf(AgentID("ada"), PredicateVerbose)
	if !ok || verbose != "true" {
		t.Fatalf("bool literal rendered as %q", verbose)
	}
	if _, ok := g.LiteralOf(AgentID("ada"), PredicateTool); ok {
		t.Fatal("node-valued predicate must not report a literal")
	}
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored := NewGraph()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !g.Equal(restored) {
		t.Fatal("graph changed across JSON round trip")
	}
}

func TestGraphJSONDeterministic(t *testing.T) {
	g := sampleGraph(t)
	first, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(g.Clone())
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(first) != string(again) {
			t.Fatal("serialization is not deterministic")
		}
	}
}

func TestNeighborhoodTerminatesOnCycles(t *testing.T) {
	g := NewGraph()
	a, b, c := ID("n:a"), ID("n:b"), ID("n:c")
	g.Add(NewNodeTriple(a, PredicateTool, b))
	g.Add(NewNodeTriple(b, PredicateTool, c))
	g.Add(NewNodeTriple(c, PredicateTool, a)) // cycle

	got := g.Neighborhood(a, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 reachable nodes, got %v", got)
	}

	shallow := g.Neighborhood(a, 1)
	if len(shallow) != 2 {
		t.Fatalf("depth bound ignored: got %v", shallow)
	}
}

func TestExtensionNamespace(t *testing.T) {
	p := ExtensionPredicate("toolcall", "response_format")
	if !IsExtension(p) {
		t.Fatal("extension predicate not recognized")
	}
	owner, field, ok := ExtensionOwner(p)
	if !ok || owner != "toolcall" || field != "response_format" {
		t.Fatalf("ExtensionOwner = %q, %q, %v", owner, field, ok)
	}
	if IsExtension(PredicateName) {
		t.Fatal("core predicate misclassified as extension")
	}
	if _, ok := CategoryOf(p); ok {
		t.Fatal("extension predicate must not map to a core category")
	}
}

func TestCategoryOf(t *testing.T) {
	cases := map[ID]Category{
		PredicateName:         CategoryIdentity,
		PredicateTool:         CategoryCapabilities,
		PredicateToolSchema:   CategoryCapabilities,
		PredicateInstructions: CategoryInstructions,
		PredicateMemory:       CategoryState,
		PredicateModel:        CategoryExecution,
	}
	for p, want := range cases {
		got, ok := CategoryOf(p)
		if !ok || got != want {
			t.Fatalf("CategoryOf(%s) = %s, %v; want %s", p, got, ok, want)
		}
	}
}

func TestAgentIDValue(t *testing.T) {
	if id, ok := AgentIDValue(AgentID("ada")); !ok || id != "ada" {
		t.Fatalf("AgentIDValue = %q, %v", id, ok)
	}
	if id, ok := AgentIDValue(ToolID("ada", "search")); !ok || id != "ada" {
		t.Fatalf("AgentIDValue(tool) = %q, %v", id, ok)
	}
	if _, ok := AgentIDValue("chrysalis:Agent"); ok {
		t.Fatal("class id must not parse as agent id")
	}
}
