// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a node or a predicate in the canonical graph.
type ID string

// AgentID builds the node id for an agent.
func AgentID(agentID string) ID {
	return ID("agent:" + agentID)
}

// ToolID builds the node id for a tool declared by an agent.
func ToolID(agentID, toolName string) ID {
	return ID("agent:" + agentID + "/tool/" + toolName)
}

// AgentIDValue extracts the bare agent id from an agent node id.
func AgentIDValue(node ID) (string, bool) {
	s := string(node)
	if !strings.HasPrefix(s, "agent:") {
		return "", false
	}
	s = strings.TrimPrefix(s, "agent:")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// ObjectKind discriminates the tagged union held by Object.
type ObjectKind uint8

const (
	KindNode ObjectKind = iota + 1
	KindString
	KindInt
	KindFloat
	KindBool
)

// Object is the third element of a triple: either a reference to another
// node or a typed literal. The zero Object is invalid.
type Object struct {
	Kind  ObjectKind
	Node  ID
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// NodeObject references another node.
func NodeObject(id ID) Object { return Object{Kind: KindNode, Node: id} }

// StringObject holds a string literal.
func StringObject(v string) Object { return Object{Kind: KindString, Str: v} }

// IntObject holds an integer literal.
func IntObject(v int64) Object { return Object{Kind: KindInt, Int: v} }

// FloatObject holds a float literal.
func FloatObject(v float64) Object { return Object{Kind: KindFloat, Float: v} }

// BoolObject holds a boolean literal.
func BoolObject(v bool) Object { return Object{Kind: KindBool, Bool: v} }

// IsNode reports whether the object references a node.
func (o Object) IsNode() bool { return o.Kind == KindNode }

// String renders the object value in its canonical textual form. Node
// references render as their id.
func (o Object) String() string {
	switch o.Kind {
	case KindNode:
		return string(o.Node)
	case KindString:
		return o.Str
	case KindInt:
		return strconv.FormatInt(o.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(o.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(o.Bool)
	}
	return ""
}

// Triple is the atomic unit of the canonical graph. Equality is exact
// match on all three components; Triple is comparable by design so graphs
// can use set semantics directly.
type Triple struct {
	Subject   ID
	Predicate ID
	Object    Object
}

// NewNodeTriple builds a triple whose object references another node.
func NewNodeTriple(subject, predicate, object ID) Triple {
	return Triple{Subject: subject, Predicate: predicate, Object: NodeObject(object)}
}

// NewLiteralTriple builds a triple with a typed literal object. Supported
// literal types: string, bool, int/int64, float64.
func NewLiteralTriple(subject, predicate ID, value any) (Triple, error) {
	var obj Object
	switch v := value.(type) {
	case string:
		obj = StringObject(v)
	case bool:
		obj = BoolObject(v)
	case int:
		obj = IntObject(int64(v))
	case int64:
		obj = IntObject(v)
	case float64:
		obj = FloatObject(v)
	default:
		return Triple{}, fmt.Errorf("unsupported literal type %T for predicate %s", value, predicate)
	}
	return Triple{Subject: subject, Predicate: predicate, Object: obj}, nil
}

// MustLiteral is NewLiteralTriple for values known to be of a supported
// type at the call site.
func MustLiteral(subject, predicate ID, value any) Triple {
	t, err := NewLiteralTriple(subject, predicate, value)
	if err != nil {
		panic(err)
	}
	return t
}

// key renders a stable ordering key for deterministic serialization.
func (t Triple) key() string {
	return string(t.Subject) + "\x00" + string(t.Predicate) + "\x00" +
		strconv.Itoa(int(t.Object.Kind)) + "\x00" + t.Object.String()
}
