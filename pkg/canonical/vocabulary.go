// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical defines the protocol-neutral semantic graph that every
// adapter translates into and out of. The graph is a set of
// subject/predicate/object triples describing exactly one agent.
//
// The core ontology is closed: adapters must map native fields into one of
// the five semantic categories below. Native fields with no canonical
// equivalent go under the per-protocol extension namespace (see
// ExtensionPredicate) so they survive a round trip instead of being dropped.
package canonical

import "strings"

// Category classifies every core predicate into one of the five semantic
// areas shared by all agent frameworks.
type Category string

const (
	CategoryIdentity     Category = "identity"
	CategoryCapabilities Category = "capabilities"
	CategoryInstructions Category = "instructions"
	CategoryState        Category = "state"
	CategoryExecution    Category = "execution"
)

// Categories returns the closed set of semantic categories.
func Categories() []Category {
	return []Category{
		CategoryIdentity,
		CategoryCapabilities,
		CategoryInstructions,
		CategoryState,
		CategoryExecution,
	}
}

// vocabPrefix is the namespace every core predicate lives under.
const vocabPrefix = "chrysalis."

// Node classes. A well-formed graph contains exactly one node typed
// ClassAgent.
const (
	ClassAgent ID = "chrysalis:Agent"
	ClassTool  ID = "chrysalis:Tool"
)

// PredicateType types a node. Object is a node reference to a class id.
const PredicateType ID = "chrysalis.node.type"

// Identity predicates.
const (
	PredicateName        ID = "chrysalis.identity.name"
	PredicateRole        ID = "chrysalis.identity.role"
	PredicateGoal        ID = "chrysalis.identity.goal"
	PredicateBackstory   ID = "chrysalis.identity.backstory"
	PredicateDescription ID = "chrysalis.identity.description"
	PredicateVersion     ID = "chrysalis.identity.version"
)

// Capability predicates. PredicateTool is node-valued and links the agent
// to one tool node per declared tool.
const (
	PredicateTool           ID = "chrysalis.capability.tool"
	PredicateFeature        ID = "chrysalis.capability.feature"
	PredicateToolName       ID = "chrysalis.tool.name"
	PredicateToolDesc       ID = "chrysalis.tool.description"
	PredicateToolSchema     ID = "chrysalis.tool.schema"
	PredicateToolAnnotation ID = "chrysalis.tool.annotation"
)

// Instruction predicates.
const (
	PredicateInstructions ID = "chrysalis.instruction.system"
	PredicateConstraint   ID = "chrysalis.instruction.constraint"
)

// State predicates.
const (
	PredicateMemory  ID = "chrysalis.state.memory"
	PredicateVerbose ID = "chrysalis.state.verbose"
)

// Execution predicates.
const (
	PredicateModel          ID = "chrysalis.execution.model"
	PredicateSourceProtocol ID = "chrysalis.execution.protocol"
)

// extPrefix is the reserved namespace for protocol-specific fields.
const extPrefix = "chrysalis.ext."

// ExtensionPredicate builds the predicate under which an adapter preserves
// a native field that has no core equivalent. Only the owning adapter's
// protocol id may be used as the scope.
func ExtensionPredicate(protocolID, field string) ID {
	return ID(extPrefix + protocolID + "." + field)
}

// IsExtension reports whether p lives in the extension namespace.
func IsExtension(p ID) bool {
	return strings.HasPrefix(string(p), extPrefix)
}

// ExtensionOwner returns the protocol id that owns an extension predicate
// and the preserved field name. ok is false for core predicates.
func ExtensionOwner(p ID) (protocolID, field string, ok bool) {
	if !IsExtension(p) {
		return "", "", false
	}
	rest := strings.TrimPrefix(string(p), extPrefix)
	i := strings.Index(rest, ".")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// CategoryOf returns the semantic category of a core predicate. Extension
// predicates and unknown ids report ok=false.
func CategoryOf(p ID) (Category, bool) {
	s := string(p)
	if IsExtension(p) || !strings.HasPrefix(s, vocabPrefix) {
		return "", false
	}
	switch {
	case strings.HasPrefix(s, "chrysalis.identity."):
		return CategoryIdentity, true
	case strings.HasPrefix(s, "chrysalis.capability."), strings.HasPrefix(s, "chrysalis.tool."):
		return CategoryCapabilities, true
	case strings.HasPrefix(s, "chrysalis.instruction."):
		return CategoryInstructions, true
	case strings.HasPrefix(s, "chrysalis.state."):
		return CategoryState, true
	case strings.HasPrefix(s, "chrysalis.execution."):
		return CategoryExecution, true
	}
	return "", false
}
