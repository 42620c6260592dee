package graph

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestConnectionsMap(t *testing.T) {

	instance := BlockInstance{
		Connections: json.RawMessage(`{"b":2,"a":1}`),
	}

	conns, err := instance.ConnectionsMap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conns["a"] != 1 || conns["b"] != 2 {
		t.Errorf("got %v, want a=1 b=2", conns)
	}
}

func TestConnectionsMapEmpty(t *testing.T) {

	instance := BlockInstance{}

	conns, err := instance.ConnectionsMap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conns) != 0 {
		t.Errorf("expected empty map, got %v", conns)
	}
}

func TestIsDisabled(t *testing.T) {

	no := false
	yes := true

	cases := []struct {
		name     string
		enabled  *bool
		disabled bool
	}{
		{"nil defaults enabled", nil, false},
		{"explicit true", &yes, false},
		{"explicit false", &no, true},
	}

	for _, c := range cases {
		instance := BlockInstance{Enabled: c.enabled}
		if got := instance.IsDisabled(); got != c.disabled {
			t.Errorf("%s: IsDisabled() = %v, want %v", c.name, got, c.disabled)
		}
	}
}

func TestParameterMappingsMap(t *testing.T) {

	bt := BlockType{
		ParameterMappings: json.RawMessage(`{"direction":{"cw":"1","ccw":"-1"}}`),
	}

	m, err := bt.ParameterMappingsMap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m["direction"]["cw"] != "1" {
		t.Errorf("got %v", m)
	}
}

func TestGuiFieldsSlice(t *testing.T) {

	bt := BlockType{GuiFields: json.RawMessage(`["angle","passes"]`)}

	fields, err := bt.GuiFieldsSlice()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fields) != 2 || fields[0] != "angle" || fields[1] != "passes" {
		t.Errorf("got %v", fields)
	}
}

func TestIsTerminal(t *testing.T) {

	outputs := "png"

	terminal := BlockType{Outputs: nil}
	nonTerminal := BlockType{Outputs: &outputs}

	if !terminal.IsTerminal() {
		t.Errorf("expected block with nil outputs to be terminal")
	}
	if nonTerminal.IsTerminal() {
		t.Errorf("expected block with non-nil outputs to not be terminal")
	}
}
