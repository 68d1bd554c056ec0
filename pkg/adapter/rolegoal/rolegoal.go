// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package rolegoal translates role/goal agent definitions (the crew-style
// YAML shape) to and from the canonical graph.
package rolegoal

import (
	"context"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// ProtocolID identifies this adapter.
const ProtocolID = "rolegoal"

// Agent is the native shape. Tools are bare names: the role/goal schema
// carries no parameter schemas.
type Agent struct {
	Name      string   `yaml:"name,omitempty"`
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal,omitempty"`
	Backstory string   `yaml:"backstory,omitempty"`
	Tools     []string `yaml:"tools,omitempty"`
	Memory    bool     `yaml:"memory,omitempty"`
	Verbose   bool     `yaml:"verbose,omitempty"`
}

var knownFields = map[string]struct{}{
	"name": {}, "role": {}, "goal": {}, "backstory": {},
	"tools": {}, "memory": {}, "verbose": {},
}

// Adapter implements adapter.Adapter for the role/goal protocol.
type Adapter struct{}

// New returns the role/goal adapter.
func New() *Adapter { return &Adapter{} }

// ProtocolID implements adapter.Adapter.
func (a *Adapter) ProtocolID() string { return ProtocolID }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() []adapter.Capability {
	return []adapter.Capability{
		{Name: "identity", Description: "role, goal and backstory persona fields", Bidirectional: true},
		{Name: "tools", Description: "tool references by name, no schemas", Bidirectional: true},
		{Name: "memory", Description: "memory and verbosity toggles", Bidirectional: true},
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
	if err := yaml.Unmarshal(native.Data, &ag); err != nil {
		res.Errors = append(res.Errors, "invalid YAML: "+err.Error())
		return res
	}
	if strings.TrimSpace(ag.Role) == "" {
		res.Errors = append(res.Errors, "role is required")
	}
	if ag.Goal == "" {
		res.Warnings = append(res.Warnings, "agent has no goal")
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

	var raw map[string]any
	if err := yaml.Unmarshal(native.Data, &raw); err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "role/goal payload is not valid YAML", err)
	}
	var ag Agent
	if err := yaml.Unmarshal(native.Data, &ag); err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "role/goal payload has wrong shape", err)
	}
	if strings.TrimSpace(ag.Role) == "" {
		return nil, errors.New(errors.CodeTransformFailed, "required identity field \"role\" is absent", nil)
	}

	report := adapter.NewReport()
	name := ag.Name
	if name == "" {
		name = ag.Role
	}
	agentID := slug(name)
	agent := canonical.AgentID(agentID)

	g := canonical.NewGraph()
	g.Add(canonical.NewNodeTriple(agent, canonical.PredicateType, canonical.ClassAgent))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateSourceProtocol, ProtocolID))
	g.Add(canonical.MustLiteral(agent, canonical.PredicateName, name))
	report.Mapped("name")
	g.Add(canonical.MustLiteral(agent, canonical.PredicateRole, ag.Role))
	report.Mapped("role")

	if ag.Goal != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateGoal, ag.Goal))
		report.Mapped("goal")
	}
	if ag.Backstory != "" {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateBackstory, ag.Backstory))
		report.Mapped("backstory")
	}

	for _, toolName := range ag.Tools {
		if strings.TrimSpace(toolName) == "" {
			report.Unmapped("tools[]", "empty tool name")
			continue
		}
		node := canonical.ToolID(agentID, toolName)
		g.Add(canonical.NewNodeTriple(node, canonical.PredicateType, canonical.ClassTool))
		g.Add(canonical.NewNodeTriple(agent, canonical.PredicateTool, node))
		g.Add(canonical.MustLiteral(node, canonical.PredicateToolName, toolName))
		report.Mapped("tools." + toolName)
	}

	if ag.Memory {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateMemory, true))
		report.Mapped("memory")
	}
	if ag.Verbose {
		g.Add(canonical.MustLiteral(agent, canonical.PredicateVerbose, true))
		report.Mapped("verbose")
	}

	for _, key := range unknownKeys(raw) {
		encoded, err := yaml.Marshal(raw[key])
		if err != nil {
			report.Unmapped(key, "value cannot be re-encoded: "+err.Error())
			continue
		}
		g.Add(canonical.MustLiteral(agent,
			canonical.ExtensionPredicate(ProtocolID, key), string(encoded)))
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
	extras := map[string]string{}

	for _, t := range graph.BySubject(agent) {
		switch t.Predicate {
		case canonical.PredicateType, canonical.PredicateSourceProtocol:
			// bookkeeping
		case canonical.PredicateName:
			ag.Name = t.Object.String()
			report.Mapped("name")
		case canonical.PredicateRole:
			ag.Role = t.Object.String()
			report.Mapped("role")
		case canonical.PredicateGoal:
			ag.Goal = t.Object.String()
			report.Mapped("goal")
		case canonical.PredicateBackstory:
			ag.Backstory = t.Object.String()
			report.Mapped("backstory")
		case canonical.PredicateMemory:
			ag.Memory = t.Object.String() == "true"
			report.Mapped("memory")
		case canonical.PredicateVerbose:
			ag.Verbose = t.Object.String() == "true"
			report.Mapped("verbose")
		case canonical.PredicateTool:
			name, ok := graph.LiteralOf(t.Object.Node, canonical.PredicateToolName)
			if !ok {
				report.Unmapped(string(t.Object.Node), "tool node has no name")
				continue
			}
			ag.Tools = append(ag.Tools, name)
			report.Mapped("tools." + name)
			if _, hasSchema := graph.LiteralOf(t.Object.Node, canonical.PredicateToolSchema); hasSchema {
				report.Lossy("tools."+name+".schema", "role/goal schema carries tool names only")
			}
		case canonical.PredicateDescription:
			report.Lossy(string(t.Predicate), "no description field in role/goal schema")
		case canonical.PredicateInstructions:
			report.Lossy(string(t.Predicate), "system instructions are not representable")
		case canonical.PredicateModel:
			report.Lossy(string(t.Predicate), "no model field in role/goal schema")
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
			extras[field] = t.Object.String()
			report.Mapped("ext." + field)
		}
	}

	if ag.Role == "" {
		// A graph imported from another protocol may carry only a name.
		if ag.Name == "" {
			return nil, errors.New(errors.CodeTransformFailed, "graph carries neither role nor name", nil)
		}
		ag.Role = ag.Name
		report.Warn("role synthesized from agent name")
	}
	sort.Strings(ag.Tools)

	data, err := marshalWithExtras(ag, extras)
	if err != nil {
		return nil, errors.New(errors.CodeTransformFailed, "failed to encode native payload", err)
	}

	return &adapter.NativeResult{
		Native: adapter.Native{Protocol: ProtocolID, Data: data},
		Report: report.Build(),
	}, nil
}

// marshalWithExtras appends preserved unknown fields after the core
// document. Both are top-level mappings, so plain concatenation yields a
// single valid YAML document.
func marshalWithExtras(ag Agent, extras map[string]string) ([]byte, error) {
	out, err := yaml.Marshal(ag)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(extras) {
		var value any
		if err := yaml.Unmarshal([]byte(extras[key]), &value); err != nil {
			value = extras[key]
		}
		chunk, err := yaml.Marshal(map[string]any{key: value})
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func unknownKeys(raw map[string]any) []string {
	var keys []string
	for k := range raw {
		if _, known := knownFields[k]; !known {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
