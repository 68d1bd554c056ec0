package toolcall

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

const sample = `{
	"name": "Ada",
	"description": "Research assistant",
	"instructions": "Answer carefully.",
	"model": "gpt-4o-mini",
	"tools": [
		{"name": "search", "description": "web search", "parameters": {"type": "object", "properties": {"q": {"type": "string"}}}}
	],
	"metadata": {"team": "research"}
}`

func native(data string) adapter.Native {
	return adapter.Native{Protocol: ProtocolID, Data: []byte(data)}
}

func TestToCanonicalMapsCoreFields(t *testing.T) {
	a := New()
	res, err := a.ToCanonical(context.Background(), native(sample), adapter.Options{})
	if err != nil {
		t.Fatalf("ToCanonical failed: %v", err)
	}
	if res.AgentID != "ada" {
		t.Fatalf("agent id = %q", res.AgentID)
	}
	if !res.Report.Success {
		t.Fatalf("report not successful: %v", res.Report.Errors)
	}
	if res.Report.FidelityScore != 1.0 {
		t.Fatalf("fidelity = %v, want 1.0 for a fully mappable payload", res.Report.FidelityScore)
	}

	agent, err := res.Graph.AgentNode()
	if err != nil {
		t.Fatalf("AgentNode: %v", err)
	}
	if name, _ := res.Graph.LiteralOf(agent, canonical.PredicateName); name != "Ada" {
		t.Fatalf("name literal = %q", name)
	}
	if len(res.Graph.ByPredicate(canonical.PredicateTool)) != 1 {
		t.Fatal("expected one tool link")
	}
}

func TestToCanonicalDeterministic(t *testing.T) {
	a := New()
	first, err := a.ToCanonical(context.Background(), native(sample), adapter.Options{})
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	second, err := a.ToCanonical(context.Background(), native(sample), adapter.Options{})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if !first.Graph.Equal(second.Graph) {
		t.Fatal("identical input produced different graphs")
	}
	if first.Report.FidelityScore != second.Report.FidelityScore {
		t.Fatal("identical input produced different fidelity")
	}
}

func TestToCanonicalRequiresName(t *testing.T) {
	a := New()
	_, err := a.ToCanonical(context.Background(), native(`{"model":"gpt-4o"}`), adapter.Options{})
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	if errors.CodeOf(err) != errors.CodeTransformFailed {
		t.Fatalf("error code = %s", errors.CodeOf(err))
	}
}

func TestUnknownFieldsPreservedAcrossRoundTrip(t *testing.T) {
	a := New()
	in := `{"name":"Ada","response_format":{"type":"json_object"}}`
	res, err := a.ToCanonical(context.Background(), native(in), adapter.Options{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	agent, _ := res.Graph.AgentNode()
	ext := canonical.ExtensionPredicate(ProtocolID, "response_format")
	if _, ok := res.Graph.LiteralOf(agent, ext); !ok {
		t.Fatal("unknown field not preserved in extension namespace")
	}

	out, err := a.FromCanonical(context.Background(), res.Graph, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var restored map[string]json.RawMessage
	if err := json.Unmarshal(out.Native.Data, &restored); err != nil {
		t.Fatalf("exported payload is not JSON: %v", err)
	}
	if string(restored["response_format"]) != `{"type":"json_object"}` {
		t.Fatalf("extension field not restored: %s", restored["response_format"])
	}
}

func TestFromCanonicalRequiresAgentNode(t *testing.T) {
	a := New()
	_, err := a.FromCanonical(context.Background(), canonical.NewGraph(), adapter.Options{})
	if err == nil {
		t.Fatal("expected error for graph without agent node")
	}
	if errors.CodeOf(err) != errors.CodeTransformFailed {
		t.Fatalf("error code = %s", errors.CodeOf(err))
	}
}

func TestInstructionsSynthesizedFromPersona(t *testing.T) {
	a := New()
	g := canonical.NewGraph()
	agent := canonical.AgentID("scout")
	g.Add(canonical.NewNodeTriple(agent, canonical.PredicateType, canonical.ClassAgent))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateName, "Scout"))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateRole, "Researcher"))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateGoal, "Find primary sources"))

	out, err := a.FromCanonical(context.Background(), g, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var ag Agent
	if err := json.Unmarshal(out.Native.Data, &ag); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ag.Instructions != "Researcher\nFind primary sources" {
		t.Fatalf("instructions = %q", ag.Instructions)
	}
	if len(out.Report.LossyMappings) != 2 {
		t.Fatalf("expected persona folds recorded as lossy, got %+v", out.Report.LossyMappings)
	}
}

func TestValidate(t *testing.T) {
	a := New()
	if v := a.Validate(native(`not json`)); v.Valid {
		t.Fatal("invalid JSON accepted")
	}
	if v := a.Validate(native(`{"tools":[{"description":"x"}],"name":"Ada"}`)); v.Valid {
		t.Fatal("unnamed tool accepted")
	}
	if v := a.Validate(native(sample)); !v.Valid {
		t.Fatalf("valid payload rejected: %v", v.Errors)
	}
}

func TestSupportsFeature(t *testing.T) {
	a := New()
	if !a.SupportsFeature("tools") {
		t.Fatal("tools capability missing")
	}
	if a.SupportsFeature("memory") {
		t.Fatal("memory must not be reported as supported")
	}
}
