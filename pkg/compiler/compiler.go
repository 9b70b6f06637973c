package compiler

import (
	"fmt"
	"log/slog"

	"github.com/pitchwire/pitchwire/pkg/graph"
	"github.com/pitchwire/pitchwire/pkg/models"
)

const (
	xSpacing = 220
	yMain    = 0
	yBranch  = 160

	defaultHTTPTimeoutSeconds = 30
	defaultRetryDelayMs       = 1000

	// PortMain is the single output port every compiled node exposes.
	PortMain = "main"
)

// Options controls a single compile call.
type Options struct {
	// UpToStep truncates the manifest's step list after the named step before
	// compiling. An unknown id is a no-op: the full manifest is compiled.
	UpToStep string

	// Troubleshoot forks a dead-end diagnostic callback from every sub-node.
	Troubleshoot bool
}

// Compiler builds executable node graphs from workflow manifests.
type Compiler struct {
	logger *slog.Logger
}

// New creates a compiler.
func New(logger *slog.Logger) *Compiler {
	return &Compiler{
		logger: logger.With("module", "compiler"),
	}
}

// Compile turns a manifest into a compiled graph. Steps compile to a linear
// prepare -> call -> parse chain; milestone callbacks and diagnostics fork as
// dead-end branches; rate limiting inserts delay nodes between steps; a merge,
// final-callback and respond tail closes the graph.
func (c *Compiler) Compile(manifest *models.WorkflowManifest, opts Options) (*graph.CompiledGraph, error) {
	steps := truncateSteps(manifest, opts.UpToStep)

	b := &builder{
		graph:        graph.New(),
		manifest:     manifest,
		troubleshoot: opts.Troubleshoot,
	}

	err := b.build(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest %s: %w", manifest.ID, err)
	}

	stepIDs := make([]string, 0, len(steps))
	for _, step := range steps {
		stepIDs = append(stepIDs, step.ID)
	}

	c.logger.Debug("Compiled manifest",
		"workflow_id", manifest.ID,
		"steps", len(stepIDs),
		"nodes", len(b.graph.Nodes()),
		"troubleshoot", opts.Troubleshoot)

	return graph.NewCompiled(b.graph, stepIDs), nil
}

// truncateSteps applies the UpToStep prefix rule.
func truncateSteps(manifest *models.WorkflowManifest, upToStep string) []models.ManifestStep {
	if upToStep == "" {
		return manifest.Steps
	}

	for i := range manifest.Steps {
		if manifest.Steps[i].ID == upToStep {
			return manifest.Steps[:i+1]
		}
	}

	return manifest.Steps
}

// builder holds the single canonical graph construction pass. There is
// exactly one place that wires milestone branches, so the callback-before-
// continuation order cannot drift between call sites.
type builder struct {
	graph        *graph.Graph
	manifest     *models.WorkflowManifest
	troubleshoot bool
	diagIndex    int
	x            int
}

func (b *builder) build(steps []models.ManifestStep) error {
	err := b.addMainNode(&graph.Node{
		Name:   "webhook_trigger",
		Kind:   graph.KindTrigger,
		Params: map[string]any{"path": b.manifest.WebhookPath, "method": "POST"},
	})
	if err != nil {
		return err
	}

	for i := range steps {
		err = b.addStepNodes(&steps[i])
		if err != nil {
			return err
		}
	}

	err = b.addTailNodes(steps)
	if err != nil {
		return err
	}

	return b.wire(steps)
}

func (b *builder) addMainNode(node *graph.Node) error {
	node.Position = [2]int{b.x, yMain}
	b.x += xSpacing

	return b.graph.AddNode(node)
}

func (b *builder) addBranchNode(node *graph.Node) error {
	node.Position = [2]int{b.x - xSpacing, yBranch}

	return b.graph.AddNode(node)
}

func (b *builder) addStepNodes(step *models.ManifestStep) error {
	nodes := []*graph.Node{
		{Name: step.ID + "_prepare", Kind: graph.KindScript, Params: prepareScript(step).Params()},
		{Name: step.ID + "_call", Kind: graph.KindHTTP, Params: b.callParams(step)},
		{Name: step.ID + "_parse", Kind: graph.KindScript, Params: parseScript(step).Params()},
	}

	for _, node := range nodes {
		err := b.addMainNode(node)
		if err != nil {
			return err
		}

		if b.troubleshoot {
			err = b.addBranchNode(&graph.Node{
				Name: node.Name + "_diag",
				Kind: graph.KindCallback,
				Params: map[string]any{
					"diagnostic_index": b.diagIndex,
					"source_node":      node.Name,
				},
			})
			if err != nil {
				return err
			}

			b.diagIndex++
		}
	}

	if step.MilestoneCallback != nil {
		err := b.addBranchNode(&graph.Node{
			Name: step.ID + "_milestone",
			Kind: graph.KindCallback,
			Params: map[string]any{
				"step":   step.MilestoneCallback.Step,
				"fields": step.MilestoneCallback.Fields,
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *builder) addTailNodes(steps []models.ManifestStep) error {
	outputKeys := make([]string, 0, len(steps))

	for i := range steps {
		key := steps[i].OutputKey
		if key == "" {
			key = steps[i].ID
		}

		outputKeys = append(outputKeys, key)
	}

	mergeParams := map[string]any{
		"output_keys": outputKeys,
		"workflow_id": b.manifest.ID,
		"version":     b.manifest.Version,
	}
	if len(b.manifest.Metadata) > 0 {
		mergeParams["metadata"] = b.manifest.Metadata
	}

	if b.manifest.RateLimits.Batching.Amount > 0 {
		mergeParams["batch_size"] = b.manifest.RateLimits.Batching.Amount
	}

	tail := []*graph.Node{
		{Name: "merge_output", Kind: graph.KindMerge, Params: mergeParams},
		{Name: "final_callback", Kind: graph.KindCallback, Params: map[string]any{
			"step":       "final",
			"step_index": len(steps) + 1,
		}},
		{Name: "respond", Kind: graph.KindRespond},
	}

	for _, node := range tail {
		err := b.addMainNode(node)
		if err != nil {
			return err
		}
	}

	return nil
}

// wire connects the nodes created by addStepNodes/addTailNodes. The trigger
// feeds the first step's prepare; within a step prepare -> call -> parse. The
// parse node then branches to the milestone callback (always registered before
// the continuation) and to its continuation, the next step's prepare through a
// delay node when rate limited, with diagnostics last.
func (b *builder) wire(steps []models.ManifestStep) error {
	for i := range steps {
		step := &steps[i]

		chain := []string{step.ID + "_prepare", step.ID + "_call", step.ID + "_parse"}
		if i == 0 {
			chain = append([]string{"webhook_trigger"}, chain...)
		}

		err := b.connectChain(chain...)
		if err != nil {
			return err
		}

		next, err := b.continuationTarget(steps, i)
		if err != nil {
			return err
		}

		err = b.connectParse(step, next)
		if err != nil {
			return err
		}

		if b.troubleshoot {
			for _, sub := range []string{step.ID + "_prepare", step.ID + "_call", step.ID + "_parse"} {
				err = b.graph.Connect(sub, graph.Branch{{Node: sub + "_diag", Port: PortMain, Index: 0}})
				if err != nil {
					return err
				}
			}
		}
	}

	return b.connectChain("merge_output", "final_callback", "respond")
}

// connectChain wires a -> b -> c single-target branches.
func (b *builder) connectChain(names ...string) error {
	for i := 0; i+1 < len(names); i++ {
		err := b.graph.Connect(names[i], graph.Branch{{Node: names[i+1], Port: PortMain, Index: 0}})
		if err != nil {
			return err
		}
	}

	return nil
}

// connectParse registers the parse node's outgoing branches. The milestone
// callback branch must come before the continuation branch: downstream
// consumers rely on the progress notification being dispatched first.
func (b *builder) connectParse(step *models.ManifestStep, next string) error {
	parse := step.ID + "_parse"

	if step.MilestoneCallback != nil {
		err := b.graph.Connect(parse, graph.Branch{{Node: step.ID + "_milestone", Port: PortMain, Index: 0}})
		if err != nil {
			return err
		}
	}

	return b.graph.Connect(parse, graph.Branch{{Node: next, Port: PortMain, Index: 0}})
}

// continuationTarget resolves where step i's parse node continues, creating
// the between-steps delay node when rate limiting applies.
func (b *builder) continuationTarget(steps []models.ManifestStep, i int) (string, error) {
	last := i == len(steps)-1
	if last {
		return "merge_output", nil
	}

	nextPrepare := steps[i+1].ID + "_prepare"

	rate := b.manifest.RateLimits.BetweenSteps
	if rate.Amount <= 0 {
		return nextPrepare, nil
	}

	delay := &graph.Node{
		Name: steps[i].ID + "_delay",
		Kind: graph.KindDelay,
		Params: map[string]any{
			"amount": rate.Amount,
			"unit":   delayUnit(rate.Unit),
		},
	}

	err := b.addMainNode(delay)
	if err != nil {
		return "", err
	}

	err = b.graph.Connect(delay.Name, graph.Branch{{Node: nextPrepare, Port: PortMain, Index: 0}})
	if err != nil {
		return "", err
	}

	return delay.Name, nil
}

func delayUnit(unit string) string {
	if unit == "" {
		return "seconds"
	}

	return unit
}

func (b *builder) callParams(step *models.ManifestStep) map[string]any {
	retry := b.manifest.RateLimits.HTTPRetry

	attempts := retry.Amount
	if attempts <= 0 {
		attempts = 1
	}

	params := map[string]any{
		"url":             b.manifest.ProviderConfig.URL,
		"method":          "POST",
		"timeout_seconds": defaultHTTPTimeoutSeconds,
		"retry": map[string]any{
			"attempts": attempts,
			"delay_ms": defaultRetryDelayMs,
		},
		"step_id": step.ID,
	}

	if b.manifest.ProviderConfig.UserAgent != "" {
		params["user_agent"] = b.manifest.ProviderConfig.UserAgent
	}

	return params
}
