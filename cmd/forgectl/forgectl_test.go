package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/workflow/port"
)

func TestLoadSourceDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_id: phb-5e
source_name: Player's Handbook
source_type: rulebook
scope: rules
game_system: D&D 5e
sections:
  - title: Conditions
    page: 290
    chunk_type: rule
    text: A stunned creature is incapacitated.
`), 0o600))

	doc, err := loadSourceDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "phb-5e", doc.SourceID)
	assert.Equal(t, port.ScopeRules, doc.Scope)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, 290, doc.Sections[0].Page)
}

func TestLoadSourceDocument_Invalid(t *testing.T) {
	dir := t.TempDir()

	noID := filepath.Join(dir, "noid.yaml")
	require.NoError(t, os.WriteFile(noID, []byte("sections:\n  - text: x\n"), 0o600))
	_, err := loadSourceDocument(noID)
	assert.ErrorContains(t, err, "source_id is required")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("source_id: a\n"), 0o600))
	_, err = loadSourceDocument(empty)
	assert.ErrorContains(t, err, "at least one section")

	_, err = loadSourceDocument(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPrintTemplates(t *testing.T) {
	reg, err := generation.LoadTemplateRegistry(filepath.Join("..", "..", "templates"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printTemplates(&buf, reg.List()))
	out := buf.String()
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "npc-default")
	assert.Contains(t, out, "game_system")
}

func TestPrintBudget(t *testing.T) {
	assembled, err := generation.NewContextAssembler().Assemble(generation.AssembleInput{
		Template: "Create an NPC.",
		Request:  &generation.Request{Type: generation.TypeNPC, FreeText: "A smith"},
		Budget:   generation.DefaultTokenBudget(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printBudget(&buf, assembled))
	assert.Contains(t, buf.String(), "request")
	assert.Contains(t, buf.String(), "HEADER")
	assert.Contains(t, buf.String(), fmt.Sprintf("total %d of 6000 available", assembled.TotalTokens))
	assert.Contains(t, buf.String(), "of 6000 available (2000 reserved for completion)")
}

func TestReadInput_Stdin(t *testing.T) {
	text, err := readInput(bytes.NewBufferString("see Ironhold"), "-")
	require.NoError(t, err)
	assert.Equal(t, "see Ironhold", text)
}
