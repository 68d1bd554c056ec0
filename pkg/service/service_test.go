// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"testing"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/adapter/rolegoal"
	"github.com/replicant-partners/chrysalis/pkg/adapter/toolcall"
	"github.com/replicant-partners/chrysalis/pkg/bridge"
	"github.com/replicant-partners/chrysalis/pkg/cache"
	"github.com/replicant-partners/chrysalis/pkg/errors"
	"github.com/replicant-partners/chrysalis/pkg/registry"
	"github.com/replicant-partners/chrysalis/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := registry.New()
	reg.Register(toolcall.New(), registry.Options{Enabled: true})
	reg.Register(rolegoal.New(), registry.Options{Enabled: true})
	st := store.NewMemoryStore()
	c := cache.New(cache.Config{DefaultTTL: time.Minute})
	t.Cleanup(func() {
		c.Close()
		st.Close()
	})
	return New(reg, st, c, bridge.New(reg, st, c))
}

const adaJSON = `{"name":"Ada","description":"research agent","tools":[{"name":"search","description":"web search"}]}`

func TestImportAgent(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.ImportAgent(context.Background(), "toolcall", []byte(adaJSON))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("version = %d, want 1", res.Version)
	}
	if res.Report.FidelityScore < 0.9 {
		t.Fatalf("fidelity = %v, want >= 0.9", res.Report.FidelityScore)
	}

	snap, err := svc.GetAgent(context.Background(), res.AgentID, 0)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if snap.Version != 1 || snap.Graph == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestImportAgentUnknownFormat(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ImportAgent(context.Background(), "unknown", []byte(adaJSON))
	if errors.CodeOf(err) != errors.CodeAdapterNotFound {
		t.Fatalf("code = %s, want %s", errors.CodeOf(err), errors.CodeAdapterNotFound)
	}
}

func TestImportAgentInvalidPayload(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ImportAgent(context.Background(), "toolcall", []byte(`{"description":"anonymous"}`))
	if err == nil {
		t.Fatal("expected validation or transform error")
	}
}

func TestExportAgent(t *testing.T) {
	svc := newTestService(t)
	imported, err := svc.ImportAgent(context.Background(), "toolcall", []byte(adaJSON))
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	resp, err := svc.ExportAgent(context.Background(), imported.AgentID, "rolegoal", 0)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !resp.Success {
		t.Fatalf("export failed: %v", resp.Errors)
	}
	if resp.Native.Protocol != "rolegoal" || len(resp.Native.Data) == 0 {
		t.Fatalf("native = %+v", resp.Native)
	}

	_, err = svc.ExportAgent(context.Background(), "nobody", "rolegoal", 0)
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Fatalf("code = %s, want %s", errors.CodeOf(err), errors.CodeNotFound)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetAgent(context.Background(), "nobody", 0)
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Fatalf("code = %s, want %s", errors.CodeOf(err), errors.CodeNotFound)
	}
}

func TestListAndDiscoverAgents(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ImportAgent(context.Background(), "toolcall", []byte(adaJSON)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := svc.ImportAgent(context.Background(), "rolegoal", []byte("name: Grace\nrole: Compiler pioneer\n")); err != nil {
		t.Fatalf("import: %v", err)
	}

	agents, err := svc.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(agents))
	}

	found, err := svc.DiscoverAgents(context.Background(), store.Criteria{Protocol: "rolegoal"})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(found) != 1 || found[0].Name != "Grace" {
		t.Fatalf("discovered = %+v", found)
	}
}

func TestGetStats(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ImportAgent(context.Background(), "toolcall", []byte(adaJSON)); err != nil {
		t.Fatalf("import: %v", err)
	}
	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Store.Agents != 1 || stats.Store.Snapshots != 1 {
		t.Fatalf("store stats = %+v", stats.Store)
	}
	if len(stats.Protocols) != 2 {
		t.Fatalf("protocols = %v", stats.Protocols)
	}
}
