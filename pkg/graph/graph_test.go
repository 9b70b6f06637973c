package graph_test

import (
	"encoding/json"
	"testing"

	"github.com/pitchwire/pitchwire/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddNode_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{Name: "a", Kind: graph.KindScript}))

	err := g.AddNode(&graph.Node{Name: "a", Kind: graph.KindHTTP})
	assert.Error(t, err)
}

func TestGraph_Connect_PreservesBranchOrder(t *testing.T) {
	t.Parallel()

	g := graph.New()
	for _, name := range []string{"parse", "milestone", "next"} {
		require.NoError(t, g.AddNode(&graph.Node{Name: name, Kind: graph.KindScript}))
	}

	// dead-end callback branch registered first, continuation second
	require.NoError(t, g.Connect("parse", graph.Branch{{Node: "milestone", Port: "main", Index: 0}}))
	require.NoError(t, g.Connect("parse", graph.Branch{{Node: "next", Port: "main", Index: 0}}))

	branches := g.Branches("parse")
	require.Len(t, branches, 2)
	assert.Equal(t, "milestone", branches[0][0].Node)
	assert.Equal(t, "next", branches[1][0].Node)
}

func TestGraph_Connect_UnknownNodes(t *testing.T) {
	t.Parallel()

	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{Name: "a", Kind: graph.KindScript}))

	assert.Error(t, g.Connect("missing", graph.Branch{{Node: "a"}}))
	assert.Error(t, g.Connect("a", graph.Branch{{Node: "missing"}}))
}

func TestCompiledGraph_MarshalEngine(t *testing.T) {
	t.Parallel()

	g := graph.New()
	require.NoError(t, g.AddNode(&graph.Node{Name: "start", Kind: graph.KindTrigger, Position: [2]int{0, 0}}))
	require.NoError(t, g.AddNode(&graph.Node{Name: "end", Kind: graph.KindRespond, Position: [2]int{200, 0}}))
	require.NoError(t, g.Connect("start", graph.Branch{{Node: "end", Port: "main", Index: 0}}))

	compiled := graph.NewCompiled(g, []string{"research"})

	raw, err := compiled.MarshalEngine()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Contains(t, doc, "nodes")
	assert.Contains(t, doc, "connections")
	assert.Equal(t, []any{"research"}, doc["stepsBuilt"])

	connections, ok := doc["connections"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, connections, "start")
}
