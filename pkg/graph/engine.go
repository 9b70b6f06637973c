package graph

import "encoding/json"

// EngineDocument is the external automation engine's JSON shape. It exists
// only at the output boundary; nothing inside the compiler reads it back.
type EngineDocument struct {
	Nodes       []*Node             `json:"nodes"`
	Connections map[string][]Branch `json:"connections"`
	StepsBuilt  []string            `json:"stepsBuilt"`
}

// EngineDocument flattens the compiled graph into the engine shape.
func (cg *CompiledGraph) EngineDocument() *EngineDocument {
	connections := make(map[string][]Branch, len(cg.order))
	for _, name := range cg.order {
		connections[name] = cg.adj[name]
	}

	stepsBuilt := cg.StepsBuilt
	if stepsBuilt == nil {
		stepsBuilt = []string{}
	}

	return &EngineDocument{
		Nodes:       cg.Nodes(),
		Connections: connections,
		StepsBuilt:  stepsBuilt,
	}
}

// MarshalEngine serializes the compiled graph for hand-off to the engine.
func (cg *CompiledGraph) MarshalEngine() ([]byte, error) {
	return json.Marshal(cg.EngineDocument())
}
