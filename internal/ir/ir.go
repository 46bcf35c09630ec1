// Package ir compiles a Campaign's wire-format workflow into an
// index-addressed, validated intermediate representation the executor
// walks. Compilation happens once, at campaign registration; the
// executor never re-parses the workflow map at journey-advance time.
package ir

import (
	"fmt"

	"github.com/lyzr/journeyengine/internal/journey"
)

// asyncCapable marks the node kinds that can suspend a journey (return
// an async verdict). A cycle is only safe if it passes through at
// least one such node — otherwise re-entering the cycle spins forever
// inside a single Advance call.
var asyncCapable = map[journey.NodeKind]bool{
	journey.KindTimeDelay:  true,
	journey.KindTimeWindow: true,
	journey.KindWaitUntil:  true,
	journey.KindPurchase:   true,
	journey.KindRestore:    true,
}

// Node is a compiled workflow node: the wire NodeDef plus edges in both
// directions, stored as node ids checked against the IR at compile time.
type Node struct {
	ID           string
	Kind         journey.NodeKind
	Data         map[string]interface{}
	Dependencies []string
	Dependents   []string
	IsTerminal   bool
}

// IR is the compiled form of a Campaign's workflow: an index-addressed
// node map plus the resolved entry point.
type IR struct {
	CampaignID string
	EntryNode  string
	Nodes      map[string]*Node
}

// Compile converts a Campaign's workflow map into a validated IR,
// returning a *journey.WorkflowError for any malformed input: a
// missing entry node, an edge to an unknown node, a campaign with no
// terminal node, or a cycle with no async-capable node on it.
func Compile(c *journey.Campaign) (*IR, error) {
	if c.EntryNodeID == "" {
		return nil, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: "missing entry_node_id"}
	}
	if _, ok := c.Workflow[c.EntryNodeID]; !ok {
		return nil, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: fmt.Sprintf("entry_node_id %q not found in workflow", c.EntryNodeID)}
	}

	out := &IR{
		CampaignID: c.CampaignID,
		EntryNode:  c.EntryNodeID,
		Nodes:      make(map[string]*Node, len(c.Workflow)),
	}
	for id, def := range c.Workflow {
		if id != def.ID && def.ID != "" {
			return nil, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: fmt.Sprintf("workflow key %q does not match node id %q", id, def.ID)}
		}
		out.Nodes[id] = &Node{ID: id, Kind: def.Kind, Data: def.Data}
	}

	for id, def := range c.Workflow {
		node := out.Nodes[id]
		for _, next := range def.Next {
			if _, ok := out.Nodes[next]; !ok {
				return nil, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: fmt.Sprintf("node %q references unknown successor %q", id, next)}
			}
			node.Dependents = append(node.Dependents, next)
			out.Nodes[next].Dependencies = append(out.Nodes[next].Dependencies, id)
		}
	}

	computeTerminalNodes(out)

	if err := validate(out); err != nil {
		return nil, &journey.WorkflowError{CampaignID: c.CampaignID, Reason: err.Error()}
	}
	return out, nil
}

func computeTerminalNodes(ir *IR) {
	for _, n := range ir.Nodes {
		n.IsTerminal = len(n.Dependents) == 0 || n.Kind == journey.KindExit
	}
}

func validate(ir *IR) error {
	if len(ir.Nodes) == 0 {
		return fmt.Errorf("workflow has no nodes")
	}

	terminalCount := 0
	for _, n := range ir.Nodes {
		if n.IsTerminal {
			terminalCount++
		}
	}
	if terminalCount == 0 {
		return fmt.Errorf("workflow has no terminal node (would run forever)")
	}

	if _, ok := ir.Nodes[ir.EntryNode]; !ok {
		return fmt.Errorf("entry node %q does not exist", ir.EntryNode)
	}

	return checkCycles(ir)
}

// checkCycles runs a DFS from every non-async node, rejecting any cycle
// that does not pass through an async-capable node. Edges into
// async-capable nodes are not followed, so any back edge the DFS finds
// closes a cycle made only of nodes that cannot suspend.
func checkCycles(ir *IR) error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		onStack[id] = true

		for _, dep := range ir.Nodes[id].Dependents {
			if asyncCapable[ir.Nodes[dep].Kind] {
				continue
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			} else if onStack[dep] {
				return fmt.Errorf("node %q is part of a cycle with no async-capable node", dep)
			}
		}

		onStack[id] = false
		return nil
	}

	for id, n := range ir.Nodes {
		if !visited[id] && !asyncCapable[n.Kind] {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// EntryNodeDef returns the compiled entry node.
func (ir *IR) EntryNodeDef() *Node {
	return ir.Nodes[ir.EntryNode]
}

// Terminals returns every terminal node in the IR.
func (ir *IR) Terminals() []*Node {
	var out []*Node
	for _, n := range ir.Nodes {
		if n.IsTerminal {
			out = append(out, n)
		}
	}
	return out
}
