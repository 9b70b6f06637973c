package compiler_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/pitchwire/pitchwire/pkg/compiler"
	"github.com/pitchwire/pitchwire/pkg/graph"
	"github.com/pitchwire/pitchwire/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testManifest(stepCount int) *models.WorkflowManifest {
	steps := make([]models.ManifestStep, 0, stepCount)
	ids := []string{"research", "rank", "write", "review", "format"}

	for i := 0; i < stepCount; i++ {
		steps = append(steps, models.ManifestStep{
			ID:        ids[i],
			Name:      "Step " + ids[i],
			Prompt:    "Do " + ids[i] + " for {league}",
			OutputKey: ids[i] + "_out",
		})
	}

	return &models.WorkflowManifest{
		ID:          "daily-digest",
		Name:        "Daily Football Digest",
		Version:     "1.0.0",
		WebhookPath: "/webhook/daily-digest",
		ProviderConfig: models.ProviderConfig{
			URL:       "https://provider.example.com/v1/generate",
			UserAgent: "pitchwire/1.0",
		},
		Steps: steps,
	}
}

func countKind(g *graph.CompiledGraph, kind graph.NodeKind) int {
	count := 0

	for _, node := range g.Nodes() {
		if node.Kind == kind {
			count++
		}
	}

	return count
}

func TestCompile_LinearChainShape(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())

	compiled, err := c.Compile(testManifest(2), compiler.Options{})
	require.NoError(t, err)

	// trigger + 2*(prepare,call,parse) + merge + final callback + respond
	assert.Len(t, compiled.Nodes(), 10)
	assert.Equal(t, []string{"research", "rank"}, compiled.StepsBuilt)

	require.NotNil(t, compiled.NodeByName("research_prepare"))
	require.NotNil(t, compiled.NodeByName("rank_parse"))
	require.NotNil(t, compiled.NodeByName("merge_output"))

	// research parse continues into rank prepare
	branches := compiled.Branches("research_parse")
	require.Len(t, branches, 1)
	assert.Equal(t, "rank_prepare", branches[0][0].Node)

	// tail chain
	assert.Equal(t, "final_callback", compiled.Branches("merge_output")[0][0].Node)
	assert.Equal(t, "respond", compiled.Branches("final_callback")[0][0].Node)
}

func TestCompile_ContinuationsWiredOnce(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())

	compiled, err := c.Compile(testManifest(3), compiler.Options{})
	require.NoError(t, err)

	// each parse node carries exactly one continuation branch
	for _, stepID := range []string{"research", "rank", "write"} {
		assert.Len(t, compiled.Branches(stepID+"_parse"), 1, stepID)
	}

	// and every prepare node is targeted by exactly one edge
	incoming := make(map[string]int)

	for _, node := range compiled.Nodes() {
		for _, branch := range compiled.Branches(node.Name) {
			for _, target := range branch {
				incoming[target.Node]++
			}
		}
	}

	for _, stepID := range []string{"research", "rank", "write"} {
		assert.Equal(t, 1, incoming[stepID+"_prepare"], stepID)
	}
}

func TestCompile_RateLimitedContinuationOnlyThroughDelay(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(2)
	manifest.RateLimits.BetweenSteps = models.RateLimitRule{Amount: 3}

	compiled, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	// no direct parse->prepare edge may bypass the delay node
	for _, branch := range compiled.Branches("research_parse") {
		for _, target := range branch {
			assert.NotEqual(t, "rank_prepare", target.Node)
		}
	}
}

func TestCompile_UpToStepPrefixProperty(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(4)

	full, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	truncated, err := c.Compile(manifest, compiler.Options{UpToStep: "rank"})
	require.NoError(t, err)

	assert.Equal(t, []string{"research", "rank"}, truncated.StepsBuilt)
	assert.Equal(t, full.StepsBuilt[:2], truncated.StepsBuilt)

	// every step node of the truncated graph exists in the full graph with
	// identical params, and the chains agree up to the truncation point
	for _, name := range []string{"research_prepare", "research_call", "research_parse", "rank_prepare", "rank_call", "rank_parse"} {
		fullNode := full.NodeByName(name)
		truncNode := truncated.NodeByName(name)
		require.NotNil(t, fullNode, name)
		require.NotNil(t, truncNode, name)
		assert.Equal(t, fullNode.Params, truncNode.Params, name)
	}

	assert.Equal(t, full.Branches("research_parse"), truncated.Branches("research_parse"))
}

func TestCompile_UpToStepUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(3)

	compiled, err := c.Compile(manifest, compiler.Options{UpToStep: "nope"})
	require.NoError(t, err)

	assert.Equal(t, []string{"research", "rank", "write"}, compiled.StepsBuilt)
}

func TestCompile_RateLimitDelayNodeCount(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())

	for _, stepCount := range []int{1, 2, 3, 5} {
		manifest := testManifest(stepCount)
		manifest.RateLimits.BetweenSteps = models.RateLimitRule{Amount: 2, Unit: "seconds"}

		compiled, err := c.Compile(manifest, compiler.Options{})
		require.NoError(t, err)

		assert.Equal(t, stepCount-1, countKind(compiled, graph.KindDelay), "steps=%d", stepCount)
	}
}

func TestCompile_DelayNodeSitsBetweenSteps(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(2)
	manifest.RateLimits.BetweenSteps = models.RateLimitRule{Amount: 3}

	compiled, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	branches := compiled.Branches("research_parse")
	require.Len(t, branches, 1)
	assert.Equal(t, "research_delay", branches[0][0].Node)
	assert.Equal(t, "rank_prepare", compiled.Branches("research_delay")[0][0].Node)

	delay := compiled.NodeByName("research_delay")
	require.NotNil(t, delay)
	assert.Equal(t, 3, delay.Params["amount"])
	assert.Equal(t, "seconds", delay.Params["unit"])
}

func TestCompile_MilestoneCallbackPrecedesContinuation(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(3)
	manifest.Steps[0].MilestoneCallback = &models.MilestoneCallback{
		Step:   "research-complete",
		Fields: []string{"topics", "topic_count"},
	}
	manifest.Steps[1].MilestoneCallback = &models.MilestoneCallback{Step: "rank-complete"}

	compiled, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	for _, stepID := range []string{"research", "rank"} {
		branches := compiled.Branches(stepID + "_parse")
		require.Len(t, branches, 2, stepID)
		assert.Equal(t, stepID+"_milestone", branches[0][0].Node, stepID)
		assert.NotEqual(t, stepID+"_milestone", branches[1][0].Node, stepID)
	}

	// milestone branch is a dead end
	assert.Empty(t, compiled.Branches("research_milestone"))

	milestone := compiled.NodeByName("research_milestone")
	require.NotNil(t, milestone)
	assert.Equal(t, "research-complete", milestone.Params["step"])
	assert.Equal(t, []string{"topics", "topic_count"}, milestone.Params["fields"])
}

func TestCompile_MilestoneOrderingSurvivesRateLimiting(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(2)
	manifest.RateLimits.BetweenSteps = models.RateLimitRule{Amount: 1}
	manifest.Steps[0].MilestoneCallback = &models.MilestoneCallback{Step: "research-complete"}

	compiled, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	branches := compiled.Branches("research_parse")
	require.Len(t, branches, 2)
	assert.Equal(t, "research_milestone", branches[0][0].Node)
	assert.Equal(t, "research_delay", branches[1][0].Node)
}

func TestCompile_TroubleshootDiagnosticBranches(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())

	compiled, err := c.Compile(testManifest(2), compiler.Options{Troubleshoot: true})
	require.NoError(t, err)

	// one diagnostic per sub-node, indexes strictly increasing
	wantIndex := 0

	for _, stepID := range []string{"research", "rank"} {
		for _, sub := range []string{"_prepare", "_call", "_parse"} {
			diag := compiled.NodeByName(stepID + sub + "_diag")
			require.NotNil(t, diag, stepID+sub)
			assert.Equal(t, wantIndex, diag.Params["diagnostic_index"])
			assert.Empty(t, compiled.Branches(diag.Name))

			wantIndex++
		}
	}

	// the diagnostic branch never replaces the main chain
	branches := compiled.Branches("research_call")
	require.Len(t, branches, 2)
	assert.Equal(t, "research_parse", branches[0][0].Node)
	assert.Equal(t, "research_call_diag", branches[1][0].Node)
}

func TestCompile_CallNodeCarriesProviderConfig(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())
	manifest := testManifest(1)
	manifest.RateLimits.HTTPRetry = models.RateLimitRule{Amount: 3}

	compiled, err := c.Compile(manifest, compiler.Options{})
	require.NoError(t, err)

	call := compiled.NodeByName("research_call")
	require.NotNil(t, call)
	assert.Equal(t, "https://provider.example.com/v1/generate", call.Params["url"])
	assert.Equal(t, "pitchwire/1.0", call.Params["user_agent"])

	retry, ok := call.Params["retry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, retry["attempts"])
}

func TestCompile_EngineDocumentRoundTripShape(t *testing.T) {
	t.Parallel()

	c := compiler.New(testLogger())

	compiled, err := c.Compile(testManifest(2), compiler.Options{})
	require.NoError(t, err)

	doc := compiled.EngineDocument()
	assert.Len(t, doc.Nodes, 10)
	assert.Equal(t, compiled.StepsBuilt, doc.StepsBuilt)
	assert.Contains(t, doc.Connections, "webhook_trigger")
}
