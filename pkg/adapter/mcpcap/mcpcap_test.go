package mcpcap

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

const sample = `{
	"server": {"name": "knowledge-base", "version": "1.2.0", "instructions": "Query before answering."},
	"capabilities": ["tools", "resources"],
	"tools": [
		{"name": "lookup", "description": "exact lookup", "inputSchema": {"type": "object", "properties": {"key": {"type": "string"}}, "required": ["key"]}}
	]
}`

func native(data string) adapter.Native {
	return adapter.Native{Protocol: ProtocolID, Data: []byte(data)}
}

func TestToCanonicalMapsManifest(t *testing.T) {
	a := New()
	res, err := a.ToCanonical(context.Background(), native(sample), adapter.Options{})
	if err != nil {
		t.Fatalf("ToCanonical failed: %v", err)
	}
	if res.AgentID != "knowledge-base" {
		t.Fatalf("agent id = %q", res.AgentID)
	}
	agent, err := res.Graph.AgentNode()
	if err != nil {
		t.Fatalf("AgentNode: %v", err)
	}
	if v, _ := res.Graph.LiteralOf(agent, canonical.PredicateVersion); v != "1.2.0" {
		t.Fatalf("version literal = %q", v)
	}
	if got := len(res.Graph.ByPredicate(canonical.PredicateFeature)); got != 2 {
		t.Fatalf("feature literals = %d, want 2", got)
	}
	tool := canonical.ToolID("knowledge-base", "lookup")
	if _, ok := res.Graph.LiteralOf(tool, canonical.PredicateToolSchema); !ok {
		t.Fatal("tool schema not captured")
	}
}

func TestToCanonicalRequiresServerName(t *testing.T) {
	a := New()
	_, err := a.ToCanonical(context.Background(), native(`{"tools":[]}`), adapter.Options{})
	if err == nil {
		t.Fatal("expected error for missing server name")
	}
	if errors.CodeOf(err) != errors.CodeTransformFailed {
		t.Fatalf("error code = %s", errors.CodeOf(err))
	}
}

func TestManifestRoundTrip(t *testing.T) {
	a := New()
	first, err := a.ToCanonical(context.Background(), native(sample), adapter.Options{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	exported, err := a.FromCanonical(context.Background(), first.Graph, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	second, err := a.ToCanonical(context.Background(), exported.Native, adapter.Options{})
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !first.Graph.Equal(second.Graph) {
		t.Fatalf("round trip changed the graph:\nfirst:  %v\nsecond: %v",
			first.Graph.Triples(), second.Graph.Triples())
	}
}

func TestFromCanonicalReportsPersonaLoss(t *testing.T) {
	a := New()
	g := canonical.NewGraph()
	agent := canonical.AgentID("ada")
	g.Add(canonical.NewNodeTriple(agent, canonical.PredicateType, canonical.ClassAgent))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateName, "Ada"))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateRole, "Researcher"))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateBackstory, "Archives."))

	out, err := a.FromCanonical(context.Background(), g, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(out.Report.LossyMappings) != 2 {
		t.Fatalf("lossy mappings = %+v, want role and backstory", out.Report.LossyMappings)
	}
	var m Manifest
	if err := json.Unmarshal(out.Native.Data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Server.Name != "Ada" {
		t.Fatalf("server name = %q", m.Server.Name)
	}
}

func TestUnknownManifestFieldsSurviveRoundTrip(t *testing.T) {
	a := New()
	manifest := `{"server":{"name":"kb"},"vendor":{"tier":"gold"},"$schema":"https://example.com/manifest.json"}`

	res, err := a.ToCanonical(context.Background(), native(manifest), adapter.Options{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	agent, err := res.Graph.AgentNode()
	if err != nil {
		t.Fatalf("AgentNode: %v", err)
	}
	got, ok := res.Graph.LiteralOf(agent, canonical.ExtensionPredicate(ProtocolID, "vendor"))
	if !ok {
		t.Fatal("vendor field not preserved in extension namespace")
	}
	if got != `{"tier":"gold"}` {
		t.Fatalf("vendor extension = %q", got)
	}
	if res.Report.FidelityScore != 1.0 {
		t.Fatalf("fidelity = %v, want 1.0 for preserved fields", res.Report.FidelityScore)
	}

	exported, err := a.FromCanonical(context.Background(), res.Graph, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(exported.Native.Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out["vendor"]) != `{"tier":"gold"}` {
		t.Fatalf("exported vendor = %s", out["vendor"])
	}
	if string(out["$schema"]) != `"https://example.com/manifest.json"` {
		t.Fatalf("exported $schema = %s", out["$schema"])
	}
	if len(exported.Report.LossyMappings) != 0 {
		t.Fatalf("own extensions reported lossy: %+v", exported.Report.LossyMappings)
	}
}

func TestToolAnnotationsSurviveRoundTrip(t *testing.T) {
	a := New()
	manifest := `{
		"server": {"name": "kb"},
		"tools": [{"name": "lookup", "annotations": {"title": "Lookup", "readOnlyHint": true}}]
	}`

	first, err := a.ToCanonical(context.Background(), native(manifest), adapter.Options{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	tool := canonical.ToolID("kb", "lookup")
	if _, ok := first.Graph.LiteralOf(tool, canonical.PredicateToolAnnotation); !ok {
		t.Fatal("tool annotations not captured")
	}

	exported, err := a.FromCanonical(context.Background(), first.Graph, adapter.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(exported.Native.Data, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m.Tools) != 1 || m.Tools[0].Annotations.Title != "Lookup" {
		t.Fatalf("exported tools = %+v", m.Tools)
	}
	if hint := m.Tools[0].Annotations.ReadOnlyHint; hint == nil || !*hint {
		t.Fatalf("readOnlyHint = %v", hint)
	}

	second, err := a.ToCanonical(context.Background(), exported.Native, adapter.Options{})
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !first.Graph.Equal(second.Graph) {
		t.Fatalf("round trip changed the graph:\nfirst:  %v\nsecond: %v",
			first.Graph.Triples(), second.Graph.Triples())
	}
}

func TestValidate(t *testing.T) {
	a := New()
	if v := a.Validate(native(`{`)); v.Valid {
		t.Fatal("invalid JSON accepted")
	}
	if v := a.Validate(native(`{"server":{"name":"kb"},"tools":[{"description":"x"}]}`)); v.Valid {
		t.Fatal("unnamed tool accepted")
	}
	if v := a.Validate(native(sample)); !v.Valid {
		t.Fatalf("valid manifest rejected: %v", v.Errors)
	}
}
