package graph

import (
	"io"
	"log/slog"
	"testing"

	"github.com/Aman-CERP/amanmcp/internal/tenant"
	"github.com/stretchr/testify/assert"
)

func testKey(project string) tenant.Key {
	return tenant.Key{ProjectName: project, BranchName: "main", PathHash: "hash"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGraph_ReplaceOutEdges_CreatesImplicitLeaves(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md", "c.md"})

	assert.Equal(t, []string{"b.md", "c.md"}, g.Traverse(key, "a.md", 1, 10))
}

func TestGraph_Traverse_ExcludesStartAndNeverRevisits(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"a.md", "c.md"})

	result := g.Traverse(key, "a.md", 3, 10)

	assert.NotContains(t, result, "a.md")
	assert.Contains(t, result, "b.md")
	assert.Contains(t, result, "c.md")
	assert.Len(t, result, 2)
}

func TestGraph_Traverse_BoundedByMaxDepth(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"c.md"})
	g.ReplaceOutEdges(key, "c.md", []string{"d.md"})

	result := g.Traverse(key, "a.md", 2, 10)

	assert.Equal(t, []string{"b.md", "c.md"}, result)
}

func TestGraph_Traverse_BoundedByMaxNodes(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md", "c.md", "d.md"})

	result := g.Traverse(key, "a.md", 5, 2)

	assert.Len(t, result, 2)
}

func TestGraph_RemoveNode_DeletesInAndOutEdges(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"c.md"})

	g.RemoveNode(key, "b.md")

	assert.Empty(t, g.Traverse(key, "a.md", 5, 10))
}

func TestGraph_WouldCreateCycle_DetectsReachability(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"c.md"})

	assert.True(t, g.WouldCreateCycle(key, "c.md", "a.md"))
	assert.False(t, g.WouldCreateCycle(key, "a.md", "c.md"))
}

func TestGraph_WouldCreateCycle_SelfEdge(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	assert.True(t, g.WouldCreateCycle(key, "a.md", "a.md"))
}

func TestGraph_DetectCycles_FindsSCC(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"c.md"})
	g.ReplaceOutEdges(key, "c.md", []string{"a.md"})
	g.ReplaceOutEdges(key, "d.md", []string{})

	cycles := g.DetectCycles(key)

	assert.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"a.md", "b.md", "c.md"}, cycles[0].Nodes)
}

func TestGraph_DetectCycles_FindsSelfLoop(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"a.md"})

	cycles := g.DetectCycles(key)

	assert.Len(t, cycles, 1)
	assert.Equal(t, []string{"a.md"}, cycles[0].Nodes)
}

func TestGraph_DetectCycles_NoCyclesInDAG(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"c.md"})

	assert.Empty(t, g.DetectCycles(key))
}

func TestGraph_CyclesContaining_FiltersByNode(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "b.md", []string{"a.md"})
	g.ReplaceOutEdges(key, "c.md", []string{"d.md"})

	assert.Len(t, g.CyclesContaining(key, "a.md"), 1)
	assert.Empty(t, g.CyclesContaining(key, "c.md"))
}

func TestGraph_TenantsAreIsolated(t *testing.T) {
	g := New(discardLogger())

	g.ReplaceOutEdges(testKey("proj-a"), "x.md", []string{"y.md"})

	assert.Empty(t, g.Traverse(testKey("proj-b"), "x.md", 5, 10))
}

func TestGraph_ReplaceOutEdges_Overwrites(t *testing.T) {
	g := New(discardLogger())
	key := testKey("proj")

	g.ReplaceOutEdges(key, "a.md", []string{"b.md"})
	g.ReplaceOutEdges(key, "a.md", []string{"c.md"})

	result := g.Traverse(key, "a.md", 1, 10)
	assert.Equal(t, []string{"c.md"}, result)
}
