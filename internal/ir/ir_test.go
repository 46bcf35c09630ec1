package ir

import (
	"testing"

	"github.com/lyzr/journeyengine/internal/journey"
)

func TestCompile_SimpleSequential(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_1",
		EntryNodeID: "A",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindShowFlow, Next: []string{"B"}},
			"B": {ID: "B", Kind: journey.KindTimeDelay, Next: []string{"C"}},
			"C": {ID: "C", Kind: journey.KindExit},
		},
	}

	out, err := Compile(c)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(out.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(out.Nodes))
	}
	if !out.Nodes["C"].IsTerminal {
		t.Error("node C should be terminal")
	}
	if out.Nodes["A"].IsTerminal {
		t.Error("node A should not be terminal")
	}
	if len(out.Nodes["B"].Dependencies) != 1 || out.Nodes["B"].Dependencies[0] != "A" {
		t.Errorf("node B: expected dependency [A], got %v", out.Nodes["B"].Dependencies)
	}
}

func TestCompile_MissingEntryNode(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_2",
		EntryNodeID: "missing",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindExit},
		},
	}
	if _, err := Compile(c); err == nil {
		t.Fatal("expected a WorkflowError for a missing entry node")
	}
}

func TestCompile_UnknownSuccessor(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_3",
		EntryNodeID: "A",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindShowFlow, Next: []string{"ghost"}},
		},
	}
	if _, err := Compile(c); err == nil {
		t.Fatal("expected a WorkflowError for an edge to an unknown node")
	}
}

func TestCompile_NoTerminalNode(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_4",
		EntryNodeID: "A",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindShowFlow, Next: []string{"B"}},
			"B": {ID: "B", Kind: journey.KindShowFlow, Next: []string{"A"}},
		},
	}
	// A loop with no async-capable node: rejected both as a cycle and
	// (independently) for having no terminal node.
	if _, err := Compile(c); err == nil {
		t.Fatal("expected a WorkflowError for a workflow with no terminal node")
	}
}

func TestCompile_CycleWithoutAsyncNodeRejected(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_5",
		EntryNodeID: "A",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindBranch, Next: []string{"B", "C"}},
			"B": {ID: "B", Kind: journey.KindBranch, Next: []string{"A"}},
			"C": {ID: "C", Kind: journey.KindExit},
		},
	}
	if _, err := Compile(c); err == nil {
		t.Fatal("expected a WorkflowError for a cycle with no async-capable node")
	}
}

func TestCompile_CycleThroughAsyncNodeAccepted(t *testing.T) {
	c := &journey.Campaign{
		CampaignID:  "camp_6",
		EntryNodeID: "A",
		Workflow: map[string]journey.NodeDef{
			"A": {ID: "A", Kind: journey.KindBranch, Next: []string{"B", "D"}},
			"B": {ID: "B", Kind: journey.KindTimeDelay, Next: []string{"A"}},
			"D": {ID: "D", Kind: journey.KindExit},
		},
	}
	out, err := Compile(c)
	if err != nil {
		t.Fatalf("expected a cycle through a time_delay node to be accepted, got: %v", err)
	}
	if !out.Nodes["D"].IsTerminal {
		t.Error("node D should be terminal")
	}
}
