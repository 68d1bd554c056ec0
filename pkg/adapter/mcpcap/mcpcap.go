// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcpcap translates MCP server capability manifests to and from
// the canonical graph. The native payload is a JSON manifest describing
// one server and its declared tools, using the mcp-go wire types.
package mcpcap

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// ProtocolID identifies this adapter.
const ProtocolID = "mcpcap"

// Manifest is the native shape: an MCP server identity plus its tool
// declarations.
type Manifest struct {
	Server       Server     `json:"server"`
	Tools        []mcp.Tool `json:"tools,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
}

// Server describes the MCP server identity.
type Server struct {
	Name         string `json:"name"`
	Version      string `json:"version,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// knownFields are the top-level manifest keys the adapter maps; anything
// else is preserved verbatim under the extension namespace.
var knownFields = map[string]struct{}{
	"server": {}, "tools": {}, "capabilities": {},
}

// Adapter implements adapter.Adapter for MCP capability manifests.
type Adapter struct{}

// New returns the MCP capability adapter.
func New() *Adapter { return &Adapter{} }

// ProtocolID implements adapter.Adapter.
func (a *Adapter) ProtocolID() string { return ProtocolID }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() []adapter.Capability {
	return []adapter.Capability{
		{Name: "tools", Description: "MCP tool declarations with input schemas", Bidirectional: true},
		{Name: "instructions", Description: "server usage instructions", Bidirectional: true},
		{Name: "features", Description: "server capability flags (resources, prompts, ...)", Bidirectional: true},
	}
}

// SupportsFeature implements adapter.Adapter.
func (a *Adapter) SupportsFeature(name string) bool {
	return adapter.SupportsFeatureIn(a.Capabilities(), name)
}

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(native adapter.Native) adapter.ValidationResult {
	var res adapter.ValidationResult
	var m Manifest
	if err := json.Unmarshal(native.Data, &m); err != nil {
		res.Errors = append(res.Errors, "invalid JSON: "+err.Error())
		return res
	}
	if strings.TrimSpace(m.Server.Name) == "" {
		res.Errors = append(res.Errors, "server.name is required")
	}
	for _, tool := range m.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			res.Errors = append(res.Errors, "manifest declares a tool without a name")
		}
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
		return nil, errors.New(errors.CodeTransformFailed, "mcp manifest is not valid JSON", err)
	}
	var m Manifest
	if err := json.Unmarshal(native.Data, &m); err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "mcp manifest has wrong shape", err)
	}
	if strings.TrimSpace(m.Server.Name) == "" {
		return nil, errors.New(errors.CodeTransformFailed, "required identity field \"server.name\" is absent", nil)
	}

	report := adapter.NewReport()
	agentID := slug(m.Server.Name)
	agent := canonical.AgentID(agentID)

	g := canonical.NewGraph()
	g.Add(canonical.NewNodeTriple(agent, canonical.PredicateType, canonical.ClassAgent))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateSourceProtocol, ProtocolID))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateName, m.Server.Name))
	report.Mapped("server.name")

	if m.Server.Version != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateVersion, m.Server.Version))
		report.Mapped("server.version")
	}
	if m.Server.Instructions != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateInstructions, m.Server.Instructions))
		report.Mapped("server.instructions")
	}

	for _, feature := range dedupeSorted(m.Capabilities) {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateFeature, feature))
		report.Mapped("capabilities." + feature)
	}

	for _, tool := range m.Tools {
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
		if schema, ok := toolSchemaJSON(tool); ok {
			g.Add(canonical.MustLiteral(node, canonical.PredicateToolSchema, schema))
		}
		if annotations, ok := annotationsJSON(tool.Annotations); ok {
			g.Add(canonical.MustLiteral(node, canonical.PredicateToolAnnotation, annotations))
		}
		report.Mapped("tools." + tool.Name)
	}

	// Unknown top-level manifest fields survive verbatim as raw JSON.
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
	var m Manifest
	extras := map[string]json.RawMessage{}

	for _, t := range graph.BySubject(agent) {
		switch t.Predicate {
		case canonical.PredicateType, canonical.PredicateSourceProtocol:
			// bookkeeping
		case canonical.PredicateName:
			m.Server.Name = t.Object.String()
			report.Mapped("server.name")
		case canonical.PredicateVersion:
			m.Server.Version = t.Object.String()
			report.Mapped("server.version")
		case canonical.PredicateInstructions:
			m.Server.Instructions = t.Object.String()
			report.Mapped("server.instructions")
		case canonical.PredicateFeature:
			m.Capabilities = append(m.Capabilities, t.Object.String())
			report.Mapped("capabilities." + t.Object.String())
		case canonical.PredicateTool:
			tool, ok := exportTool(graph, t.Object.Node)
			if !ok {
				report.Unmapped(string(t.Object.Node), "tool node has no name")
				continue
			}
			m.Tools = append(m.Tools, tool)
			report.Mapped("tools." + tool.Name)
		case canonical.PredicateDescription, canonical.PredicateRole,
			canonical.PredicateGoal, canonical.PredicateBackstory:
			report.Lossy(string(t.Predicate), "persona fields have no MCP manifest equivalent")
		case canonical.PredicateModel, canonical.PredicateMemory,
			canonical.PredicateVerbose, canonical.PredicateConstraint:
			report.Lossy(string(t.Predicate), "no equivalent field in MCP manifest")
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
			extras[field] = json.RawMessage(t.Object.String())
			report.Mapped("ext." + field)
		}
	}

	if m.Server.Name == "" {
		return nil, errors.New(errors.CodeTransformFailed, "graph carries no agent name", nil)
	}
	sort.Strings(m.Capabilities)
	sort.Slice(m.Tools, func(i, j int) bool { return m.Tools[i].Name < m.Tools[j].Name })

	data, err := marshalWithExtras(m, extras)
	if err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "failed to encode native payload", err)
	}

	return &adapter.NativeResult{
		Native: adapter.Native{Protocol: ProtocolID, Data: data},
		Report: report.Build(),
	}, nil
}

// toolSchemaJSON renders a deterministic JSON form of the tool's input
// schema. RawInputSchema wins when set, matching mcp-go serialization.
func toolSchemaJSON(tool mcp.Tool) (string, bool) {
	var raw []byte
	if tool.RawInputSchema != nil {
		raw = tool.RawInputSchema
	} else {
		encoded, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return "", false
		}
		raw = encoded
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(normalized), true
}

// annotationsJSON renders the tool's annotations as normalized JSON.
// A zero annotation set encodes to an empty object and is elided.
func annotationsJSON(annotations mcp.ToolAnnotation) (string, bool) {
	encoded, err := json.Marshal(annotations)
	if err != nil || string(encoded) == "{}" {
		return "", false
	}
	return string(encoded), true
}

func exportTool(graph *canonical.Graph, node canonical.ID) (mcp.Tool, bool) {
	name, ok := graph.LiteralOf(node, canonical.PredicateToolName)
	if !ok {
		return mcp.Tool{}, false
	}
	tool := mcp.Tool{Name: name}
	if desc, ok := graph.LiteralOf(node, canonical.PredicateToolDesc); ok {
		tool.Description = desc
	}
	if schema, ok := graph.LiteralOf(node, canonical.PredicateToolSchema); ok {
		tool.RawInputSchema = json.RawMessage(schema)
	}
	if annotations, ok := graph.LiteralOf(node, canonical.PredicateToolAnnotation); ok {
		// Malformed annotation literals are dropped rather than failing
		// the whole export.
		_ = json.Unmarshal([]byte(annotations), &tool.Annotations)
	}
	return tool, true
}

// marshalWithExtras merges preserved unknown top-level fields back into
// the encoded manifest.
func marshalWithExtras(m Manifest, extras map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(m)
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

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
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
