// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolcall translates function-calling agent definitions (the
// shape used by assistant/tool-calling APIs) to and from the canonical
// graph. The native payload is JSON.
package toolcall

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// ProtocolID identifies this adapter in the registry and in the
// extension namespace.
const ProtocolID = "toolcall"

// Agent is the native shape: an assistant definition with function tools.
type Agent struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Model        string            `json:"model,omitempty"`
	Tools        []Tool            `json:"tools,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Tool is one declared function tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// knownFields are the top-level keys the adapter maps; anything else is
// preserved verbatim under the extension namespace.
var knownFields = map[string]struct{}{
	"name": {}, "description": {}, "instructions": {}, "model": {},
	"tools": {}, "metadata": {},
}

// Adapter implements adapter.Adapter for the tool-calling protocol.
type Adapter struct{}

// New returns the tool-calling adapter.
func New() *Adapter { return &Adapter{} }

// ProtocolID implements adapter.Adapter.
func (a *Adapter) ProtocolID() string { return ProtocolID }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() []adapter.Capability {
	return []adapter.Capability{
		{Name: "tools", Description: "function tools with JSON schemas", Bidirectional: true},
		{Name: "instructions", Description: "system instructions", Bidirectional: true},
		{Name: "model", Description: "model pinning", Bidirectional: true},
		{Name: "metadata", Description: "opaque key/value metadata", Bidirectional: true},
	}
}

// SupportsFeature implements adapter.Adapter.
func (a *Adapter) SupportsFeature(name string) bool {
	return adapter.SupportsFeatureIn(a.Capabilities(), name)
}

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(native adapter.Native) adapter.ValidationResult {
	var res adapter.ValidationResult
	var ag Agent
	if err := json.Unmarshal(native.Data, &ag); err != nil {
		res.Errors = append(res.Errors, "invalid JSON: "+err.Error())
		return res
	}
	if strings.TrimSpace(ag.Name) == "" {
		res.Errors = append(res.Errors, "name is required")
	}
	for i, tool := range ag.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			res.Errors = append(res.Errors, "tool "+strconv.Itoa(i)+" has no name")
		}
	}
	if ag.Instructions == "" {
		res.Warnings = append(res.Warnings, "no instructions; exported agents will have empty guidance")
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// ToCanonical implements adapter.Adapter.
func (a *Adapter) ToCanonical(ctx context.Context, native adapter.Native, opts adapter.Options) (*adapter.TransformResult, error) {
	if opts.Strict {
		if v := a.Validate(native); !v.Valid {
			return nil, errors.New(errors.CodeTransformFailed, "native payload failed validation", nil).
				WithContext("validation_errors", v.Errors)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(native.Data, &raw); err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "tool-calling payload is not valid JSON", err)
	}
	var ag Agent
	if err := json.Unmarshal(native.Data, &ag); err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "tool-calling payload has wrong shape", err)
	}
	if strings.TrimSpace(ag.Name) == "" {
		return nil, errors.New(errors.CodeTransformFailed, "required identity field \"name\" is absent", nil)
	}

	report := adapter.NewReport()
	agentID := slug(ag.Name)
	agent := canonical.AgentID(agentID)

	g := canonical.NewGraph()
	g.Add(canonical.NewNodeTriple(agent, canonical.PredicateType, canonical.ClassAgent))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateSourceProtocol, ProtocolID))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateName, ag.Name))
	report.Mapped("name")

	if ag.Description != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateDescription, ag.Description))
		report.Mapped("description")
	}
	if ag.Instructions != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateInstructions, ag.Instructions))
		report.Mapped("instructions")
	}
	if ag.Model != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateModel, ag.Model))
		report.Mapped("model")
	}

	for _, tool := range ag.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			report.Unmapped("tools[]", "tool without a name cannot be addressed")
			continue
		}
		node := canonical.ToolID(agentID, tool.Name)
		g.Add(canonical.NewNodeTriple(node, canonical.PredicateType, canonical.ClassTool))
		g.Add(canonical.NewNodeTriple(agent, canonical.PredicateTool, node))
		g.Add(canonical.MustLiteral(node, canonical.PredicateToolName, tool.Name))
		if tool.Description != "" {
			g.Add(canonical.MustLiteral(node, canonical.PredicateToolDesc, tool.Description))
		}
		if len(tool.Parameters) > 0 {
			normalized, err := normalizeJSON(tool.Parameters)
			if err != nil {
				report.Lossy("tools."+tool.Name+".parameters", "schema is not valid JSON: "+err.Error())
			} else {
				g.Add(canonical.MustLiteral(node, canonical.PredicateToolSchema, normalized))
			}
		}
		report.Mapped("tools." + tool.Name)
	}

	for _, key := range sortedKeys(ag.Metadata) {
		g.Add(canonical.MustLiteral(agent,
			canonical.ExtensionPredicate(ProtocolID, "metadata."+key), ag.Metadata[key]))
		report.Preserved("metadata." + key)
	}

	// Unknown top-level fields survive verbatim as raw JSON.
	for _, key := range sortedRawKeys(raw) {
		if _, known := knownFields[key]; known {
			continue
		}
		g.Add(canonical.MustLiteral(agent,
			canonical.ExtensionPredicate(ProtocolID, key), string(raw[key])))
		report.Preserved(key)
	}

	return &adapter.TransformResult{Graph: g, AgentID: agentID, Report: report.Build()}, nil
}

// FromCanonical implements adapter.Adapter.
func (a *Adapter) FromCanonical(ctx context.Context, graph *canonical.Graph, opts adapter.Options) (*adapter.NativeResult, error) {
	agent, err := graph.AgentNode()
	if err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "graph has no Agent-typed node", err)
	}

	report := adapter.NewReport()
	var ag Agent
	extras := map[string]json.RawMessage{}
	var role, goal, backstory string
	var constraints []string

	for _, t := range graph.BySubject(agent) {
		switch t.Predicate {
		case canonical.PredicateType, canonical.PredicateSourceProtocol:
			// bookkeeping, not native data
		case canonical.PredicateName:
			ag.Name = t.Object.String()
			report.Mapped("name")
		case canonical.PredicateDescription:
			ag.Description = t.Object.String()
			report.Mapped("description")
		case canonical.PredicateInstructions:
			ag.Instructions = t.Object.String()
			report.Mapped("instructions")
		case canonical.PredicateModel:
			ag.Model = t.Object.String()
			report.Mapped("model")
		case canonical.PredicateRole:
			role = t.Object.String()
			report.Lossy(string(t.Predicate), "folded into instructions text")
		case canonical.PredicateGoal:
			goal = t.Object.String()
			report.Lossy(string(t.Predicate), "folded into instructions text")
		case canonical.PredicateBackstory:
			backstory = t.Object.String()
			report.Lossy(string(t.Predicate), "folded into instructions text")
		case canonical.PredicateConstraint:
			constraints = append(constraints, "Constraint: "+t.Object.String())
			report.Lossy(string(t.Predicate), "folded into instructions text")
		case canonical.PredicateTool:
			tool, ok := exportTool(graph, t.Object.Node)
			if !ok {
				report.Unmapped(string(t.Object.Node), "tool node has no name")
				continue
			}
			ag.Tools = append(ag.Tools, tool)
			report.Mapped("tools." + tool.Name)
		case canonical.PredicateMemory, canonical.PredicateVerbose, canonical.PredicateFeature:
			report.Lossy(string(t.Predicate), "no equivalent field in tool-calling schema")
		default:
			owner, field, ok := canonical.ExtensionOwner(t.Predicate)
			if !ok {
				report.Unmapped(string(t.Predicate), "unknown core predicate")
				continue
			}
			if owner != ProtocolID {
				report.Lossy(string(t.Predicate), "extension entry owned by protocol "+owner)
				continue
			}
			if rest, found := strings.CutPrefix(field, "metadata."); found {
				if ag.Metadata == nil {
					ag.Metadata = map[string]string{}
				}
				ag.Metadata[rest] = t.Object.String()
			} else {
				extras[field] = json.RawMessage(t.Object.String())
			}
			report.Mapped("ext." + field)
		}
	}

	if ag.Name == "" {
		return nil, errors.New(errors.CodeTransformFailed, "graph carries no agent name", nil)
	}
	if ag.Instructions == "" {
		sort.Strings(constraints)
		var parts []string
		for _, p := range append([]string{role, goal, backstory}, constraints...) {
			if p != "" {
				parts = append(parts, p)
			}
		}
		ag.Instructions = strings.Join(parts, "\n")
	}
	sort.Slice(ag.Tools, func(i, j int) bool { return ag.Tools[i].Name < ag.Tools[j].Name })

	data, err := marshalWithExtras(ag, extras)
	if err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "failed to encode native payload", err)
	}

	return &adapter.NativeResult{
		Native: adapter.Native{Protocol: ProtocolID, Data: data},
		Report: report.Build(),
	}, nil
}

func exportTool(graph *canonical.Graph, node canonical.ID) (Tool, bool) {
	name, ok := graph.LiteralOf(node, canonical.PredicateToolName)
	if !ok {
		return Tool{}, false
	}
	tool := Tool{Name: name}
	if desc, ok := graph.LiteralOf(node, canonical.PredicateToolDesc); ok {
		tool.Description = desc
	}
	if schema, ok := graph.LiteralOf(node, canonical.PredicateToolSchema); ok {
		tool.Parameters = json.RawMessage(schema)
	}
	return tool, true
}

// marshalWithExtras merges preserved unknown top-level fields back into
// the encoded agent.
func marshalWithExtras(ag Agent, extras map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(ag)
	if err != nil {
		return nil, err
	}
	if len(extras) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range extras {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// normalizeJSON re-encodes a JSON document with sorted object keys so
// schema literals are deterministic.
func normalizeJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
