// Package graph is the Block Catalogue and Block Graph: the catalogue of
// block types and the table of block instances that make up a project's
// DAG.
package graph

import json "github.com/goccy/go-json"

// Special block-type names that dispatch bespoke behavior in the Pipeline
// Evaluator. Any other name routes to the general-block
// cache-consult/execute/cache-insert pipeline.
const (
	TypeInput        = "Input"
	TypeLoadImage    = "Load Image"
	TypeImagePreview = "Image Preview"
)

// BlockType is a row of blocks_catalogue: a block's *type*, shared by every
// instance of it.
type BlockType struct {
	Id                int             `db:"id"`
	Name              string          `db:"name"`
	Command           string          `db:"command"`
	ParameterTemplate string          `db:"parameter_template"`
	ParameterMappings json.RawMessage `db:"parameter_mappings"` // field -> { rawValue -> mappedValue }
	GuiFields         json.RawMessage `db:"gui_fields"`         // ordered []string
	Outputs           *string         `db:"outputs"`            // NULL marks the project's terminal block
}

// ParameterMappingsMap decodes the nested field->rawValue->mappedValue table.
func (t *BlockType) ParameterMappingsMap() (map[string]map[string]string, error) {
	if len(t.ParameterMappings) == 0 {
		return map[string]map[string]string{}, nil
	}
	var m map[string]map[string]string
	if err := json.Unmarshal(t.ParameterMappings, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GuiFieldsSlice decodes the ordered list of user-exposed setting names.
func (t *BlockType) GuiFieldsSlice() ([]string, error) {
	if len(t.GuiFields) == 0 {
		return nil, nil
	}
	var f []string
	if err := json.Unmarshal(t.GuiFields, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// IsTerminal reports whether this block type is the project's terminal
// block (catalogue row has outputs IS NULL).
func (t *BlockType) IsTerminal() bool {
	return t.Outputs == nil
}

// BlockInstance is a row of blocks: a positioned, configured node in a
// project's DAG.
type BlockInstance struct {
	Id          int             `db:"id"`
	IdProject   int             `db:"idproject"`
	IdBlock     int             `db:"idblock"` // -> BlockType.Id
	Connections json.RawMessage `db:"connections"`  // input-port name -> upstream BlockInstance id
	OutputValue json.RawMessage `db:"output_value"` // settings object, frontend-supplied JSON
	Enabled     *bool           `db:"enabled"`       // absent/true ≡ enabled; false ≡ disabled pass-through
}

// IsDisabled reports whether this instance is a disabled pass-through:
// enabled is explicitly false.
func (b *BlockInstance) IsDisabled() bool {
	return b.Enabled != nil && !*b.Enabled
}

// ConnectionsMap decodes the input-port -> upstream-instance-id mapping.
func (b *BlockInstance) ConnectionsMap() (map[string]int, error) {
	if len(b.Connections) == 0 {
		return map[string]int{}, nil
	}
	var m map[string]int
	if err := json.Unmarshal(b.Connections, &m); err != nil {
		return nil, err
	}
	return m, nil
}
