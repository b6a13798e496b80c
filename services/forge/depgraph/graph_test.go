// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"errors"
	"reflect"
	"testing"
)

func mustBuild(t *testing.T, modules []ModuleNode) *Graph {
	t.Helper()
	g, err := Build(modules)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// indexOf returns the position of id in order, or -1.
func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestTopoSortChain(t *testing.T) {
	g := mustBuild(t, []ModuleNode{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"C"}},
		{ID: "C"},
	})

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}

	want := []string{"C", "B", "A"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopoSortDiamond(t *testing.T) {
	g := mustBuild(t, []ModuleNode{
		{ID: "app", DependsOn: []string{"db", "cache"}},
		{ID: "db", DependsOn: []string{"base"}},
		{ID: "cache", DependsOn: []string{"base"}},
		{ID: "base"},
	})

	order, err := g.TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("len(order) = %d, want 4", len(order))
	}

	// Every module must follow all of its dependencies.
	deps := map[string][]string{
		"app":   {"db", "cache", "base"},
		"db":    {"base"},
		"cache": {"base"},
	}
	for id, required := range deps {
		for _, dep := range required {
			if indexOf(order, dep) > indexOf(order, id) {
				t.Errorf("order %v places %s before its dependency %s", order, id, dep)
			}
		}
	}
}

func TestTopoSortCycle(t *testing.T) {
	g := mustBuild(t, []ModuleNode{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"C"}},
		{ID: "C", DependsOn: []string{"A"}},
	})

	_, err := g.TopoSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("err = %v, want CycleError", err)
	}

	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(cycleErr.Path, want) {
		t.Errorf("cycle = %v, want %v", cycleErr.Path, want)
	}
}

func TestTopoSortCycleExcludesOutsiders(t *testing.T) {
	// "entry" points into the cycle but is not on it.
	g := mustBuild(t, []ModuleNode{
		{ID: "entry", DependsOn: []string{"x"}},
		{ID: "x", DependsOn: []string{"y"}},
		{ID: "y", DependsOn: []string{"x"}},
	})

	_, err := g.TopoSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("err = %v, want CycleError", err)
	}

	if len(cycleErr.Path) != 2 {
		t.Fatalf("cycle = %v, want exactly the two modules on the cycle", cycleErr.Path)
	}
	for _, id := range cycleErr.Path {
		if id == "entry" {
			t.Errorf("cycle %v contains entry, which is not on the cycle", cycleErr.Path)
		}
	}
}

func TestTopoSortSelfDependency(t *testing.T) {
	g := mustBuild(t, []ModuleNode{
		{ID: "loop", DependsOn: []string{"loop"}},
	})

	_, err := g.TopoSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if !reflect.DeepEqual(cycleErr.Path, []string{"loop"}) {
		t.Errorf("cycle = %v, want [loop]", cycleErr.Path)
	}
}

func TestTopoSortUnresolvedDependency(t *testing.T) {
	g := mustBuild(t, []ModuleNode{
		{ID: "A", DependsOn: []string{"ghost"}},
	})

	_, err := g.TopoSort()
	var unresolved *UnresolvedDependencyError
	if !errors.As(err, &unresolved) {
		t.Fatalf("err = %v, want UnresolvedDependencyError", err)
	}
	if unresolved.From != "A" || unresolved.Missing != "ghost" {
		t.Errorf("unresolved = %+v, want A -> ghost", unresolved)
	}

	var cycleErr *CycleError
	if errors.As(err, &cycleErr) {
		t.Error("unresolved dependency must not be reported as a cycle")
	}
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	_, err := Build([]ModuleNode{{ID: "A"}, {ID: "A"}})
	if err == nil {
		t.Fatal("Build = nil, want duplicate id error")
	}
}

func TestTopoSortEmptyGraph(t *testing.T) {
	order, err := NewGraph().TopoSort()
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("order = %v, want empty", order)
	}
}
