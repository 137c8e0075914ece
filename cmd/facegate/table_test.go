package main

import (
	"strings"
	"testing"
)

func TestRenderTableAlignsNumericColumnsAndPadsRows(t *testing.T) {
	out := renderTable([]column{{title: "#", numeric: true}, {title: "Identity"}}, [][]string{
		{"1", "alice"},
		{"10"},
	})
	for _, want := range []string{"│  1 │ alice    │", "│ 10 │          │"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in table:\n%s", want, out)
		}
	}
}

func TestRenderTableWithoutColumns(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestRenderPropertiesUsesValueColumn(t *testing.T) {
	out := renderProperties("Setting", [][]string{{"Security", "High"}})
	if !strings.Contains(out, "│ Security │ High  │") {
		t.Fatalf("unexpected properties table:\n%s", out)
	}
}
