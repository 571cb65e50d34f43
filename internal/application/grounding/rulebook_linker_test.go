package grounding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/workflow/port"
)

func TestFindReferencesPatterns(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		raw     string
		refType ReferenceType
		source  string
		page    int
		chapter string
		term    string
	}{
		{name: "abbreviated page", text: "See PHB p.123 for details", raw: "PHB p.123", refType: RefPage, source: "Player's Handbook", page: 123},
		{name: "page without dot", text: "Check DMG p42", raw: "DMG p42", refType: RefPage, source: "Dungeon Master's Guide", page: 42},
		{name: "pg form", text: "PHB pg. 256 covers it", raw: "PHB pg. 256", refType: RefPage, source: "Player's Handbook", page: 256},
		{name: "full book page", text: "Player's Handbook page 100", raw: "Player's Handbook page 100", refType: RefPage, source: "Player's Handbook", page: 100},
		{name: "chapter number", text: "See DMG Chapter 5", refType: RefChapter, source: "Dungeon Master's Guide", chapter: "5"},
		{name: "chapter short", text: "PHB Ch. 3 explains", refType: RefChapter, source: "Player's Handbook", chapter: "3"},
		{name: "chapter roman", text: "Player's Handbook Chapter II", refType: RefChapter, source: "Player's Handbook", chapter: "II"},
		{name: "parenthetical book", text: "Grappling works differently (see Player's Handbook).", raw: "(see Player's Handbook)", refType: RefParentheticalBook, source: "Player's Handbook"},
		{name: "mechanic", text: "Make a DC 15 Wisdom save", raw: "DC 15", refType: RefGameMechanic, term: "DC 15"},
		{name: "fractional cr", text: "A CR 1/2 goblin boss", raw: "CR 1/2", refType: RefGameMechanic, term: "CR 1/2"},
		{name: "condition", text: "The target is Stunned until dawn", raw: "Stunned", refType: RefCondition, source: "Player's Handbook", term: "stunned"},
		{name: "see term", text: "Trained at the forge (see Ironhold blacksmith).", raw: "(see Ironhold blacksmith)", refType: RefGenericTerm, term: "Ironhold blacksmith"},
		{name: "see page of book", text: "The vault is described, see page 412 of a nonexistent book.", raw: "see page 412 of a nonexistent book", refType: RefPage, source: "a nonexistent book", page: 412},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := FindReferences(tt.text)
			require.Len(t, refs, 1)
			ref := refs[0]
			assert.Equal(t, tt.refType, ref.Type)
			if tt.raw != "" {
				assert.Equal(t, tt.raw, ref.RawText)
			}
			assert.Equal(t, tt.source, ref.SourceName)
			if tt.page > 0 {
				require.NotNil(t, ref.Page)
				assert.Equal(t, tt.page, *ref.Page)
			}
			assert.Equal(t, tt.chapter, ref.Chapter)
			assert.Equal(t, tt.term, ref.Term)
			assert.Equal(t, ref.RawText, tt.text[ref.StartPos:ref.EndPos])
		})
	}
}

func TestFindReferencesDedupesOverlaps(t *testing.T) {
	refs := FindReferences("Grapple rules (see PHB p.195) and the target is prone.")
	require.Len(t, refs, 2)
	assert.Equal(t, RefPage, refs[0].Type)
	assert.Equal(t, "PHB p.195", refs[0].RawText)
	assert.Equal(t, RefCondition, refs[1].Type)

	refs = FindReferences("Hidden lore (see page 412 of a nonexistent book)")
	require.Len(t, refs, 1)
	assert.Equal(t, RefPage, refs[0].Type)
	assert.Equal(t, "a nonexistent book", refs[0].SourceName)
}

func TestFindReferencesSortedByPosition(t *testing.T) {
	refs := FindReferences("The poisoned guard needs a DC 12 check, see PHB p.292.")
	require.Len(t, refs, 3)
	for i := 1; i < len(refs); i++ {
		assert.Less(t, refs[i-1].StartPos, refs[i].StartPos)
	}
	assert.Empty(t, FindReferences("   "))
}

func TestNormalizeBookName(t *testing.T) {
	cases := map[string]string{
		"PHB":                  "Player's Handbook",
		"dmg":                  "Dungeon Master's Guide",
		"MM":                   "Monster Manual",
		"XGtE":                 "Xanathar's Guide to Everything",
		"TCoE":                 "Tasha's Cauldron of Everything",
		"MotM":                 "Mordenkainen Presents: Monsters of the Multiverse",
		"Players Handbook":     "Player's Handbook",
		"Dungeon Masters Guide": "Dungeon Master's Guide",
		"Homebrew Codex":       "Homebrew Codex",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBookName(in), in)
	}
}

func TestBuildSearchQuery(t *testing.T) {
	page := 10
	assert.Equal(t, "stunned Appendix A: Conditions Player's Handbook", BuildSearchQuery(Reference{
		Term: "stunned", Section: "Appendix A: Conditions", SourceName: "Player's Handbook",
	}))
	assert.Equal(t, "chapter 5 Dungeon Master's Guide", BuildSearchQuery(Reference{Chapter: "5", SourceName: "Dungeon Master's Guide"}))
	assert.Equal(t, "Player's Handbook", BuildSearchQuery(Reference{SourceName: "Player's Handbook", Page: &page}))
	assert.Equal(t, "raw", BuildSearchQuery(Reference{RawText: " raw "}))
}

func TestComputeConfidence(t *testing.T) {
	h := hit("p1", "The fireball spell explodes", 0.6)
	assert.InDelta(t, 0.6, computeConfidence(h, "lightning"), 1e-9)
	assert.InDelta(t, 0.7, computeConfidence(h, "fireball"), 1e-9)

	h.Source.Title = "Fireball"
	h.Source.ChunkType = "spell"
	assert.InDelta(t, 0.8, computeConfidence(h, "fireball"), 1e-9)

	h.Confidence = 0.98
	assert.InDelta(t, 1.0, computeConfidence(h, "fireball"), 1e-9)
}

func TestInferReferenceType(t *testing.T) {
	h := hit("p", "", 0.5)
	h.Source.ChunkType = "stat_block"
	assert.Equal(t, RefMonster, inferReferenceType(h))

	h.Source.ChunkType = ""
	h.Content = "Each creature must make a Dexterity saving throw"
	assert.Equal(t, RefSpell, inferReferenceType(h))

	h.Content = "Prerequisite: Strength 13"
	assert.Equal(t, RefFeat, inferReferenceType(h))

	h.Content = "A quiet village"
	assert.Equal(t, RefGenericTerm, inferReferenceType(h))
}

func TestLinkToRulebookRanksByConfidence(t *testing.T) {
	fs := newFakeSearcher().on(port.ScopeRules, "grapple",
		hit("a", "first", 0.55),
		hit("b", "second", 0.7),
		hit("c", "third", 0.7),
	)
	linker := NewRulebookLinker(fs)

	linked, err := linker.LinkToRulebook(context.Background(), "grapple", "")
	require.NoError(t, err)
	require.Len(t, linked, 3)
	assert.Equal(t, "b", linked[0].PassageID)
	assert.Equal(t, "c", linked[1].PassageID)
	assert.Equal(t, "a", linked[2].PassageID)
	assert.Equal(t, port.ScopeRules, fs.requests[0].Scope)
}

func TestValidateReferences(t *testing.T) {
	fs := newFakeSearcher().
		on(port.ScopeRules, "DC 15", hit("dc", "difficulty class", 0.8)).
		on(port.ScopeRules, "AC 18", hit("ac", "armor", 0.3))
	linker := NewRulebookLinker(fs)

	refs := FindReferences("A DC 15 check against AC 18 and CR 5")
	require.Len(t, refs, 3)

	report, err := linker.ValidateReferences(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, report.Valid, 1)
	require.Len(t, report.Invalid, 2)
	assert.Equal(t, "dc", report.Valid[0].Linked.PassageID)
	assert.Equal(t, "Low confidence match: 0.30", report.Invalid[0].Reason)
	assert.Equal(t, "No matching content found", report.Invalid[1].Reason)
	assert.InDelta(t, 1.0/3.0, report.SuccessRate(), 1e-9)

	assert.InDelta(t, 1.0, (&ValidationReport{}).SuccessRate(), 1e-9)
}

func TestValidateReferencesReturnsSearchError(t *testing.T) {
	fs := newFakeSearcher()
	fs.err = errors.New("connection refused")
	linker := NewRulebookLinker(fs)

	_, err := linker.ValidateReferences(context.Background(), FindReferences("DC 10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.err)
}

func TestBuildCitationDefaults(t *testing.T) {
	linker := NewRulebookLinker(nil)
	page := 42
	c := linker.BuildCitation(Reference{RawText: "DMG p42", Type: RefPage, SourceName: "Dungeon Master's Guide", Page: &page}, nil)
	assert.Equal(t, SourceRulebook, c.SourceType)
	assert.InDelta(t, 0.5, c.Confidence, 1e-9)
	assert.Equal(t, "DMG p42", c.TermMatched)
	require.NotNil(t, c.Location)
	assert.Equal(t, 42, *c.Location.Page)

	linked := &LinkedContent{PassageID: "p9", Content: "body", Confidence: 0.77, Source: port.SourceMetadata{SourceID: "book", SourceName: "Codex"}}
	c = linker.BuildCitation(Reference{RawText: "(see x)", Term: "x"}, linked)
	assert.Equal(t, "Codex", c.SourceName)
	assert.Equal(t, "p9", c.PassageID)
	assert.Equal(t, "book", c.SourceID)
	assert.Equal(t, "body", c.Excerpt)
	assert.Equal(t, "x", c.TermMatched)
	assert.InDelta(t, 0.77, c.Confidence, 1e-9)
	assert.Nil(t, c.Location)
}
