package generation

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/workflow/node"
	"campaign-forge-api/internal/workflow/port"
)

func testSnapshot() *port.CampaignSnapshot {
	return &port.CampaignSnapshot{
		CampaignID:     "c1",
		Name:           "Shadows over Ironhold",
		GameSystem:     "D&D 5e",
		Setting:        "Forgotten Realms",
		Tone:           "grim",
		SessionTitle:   "The Forge Falls",
		SessionNumber:  3,
		SessionSummary: "The party reached the dwarven hold.",
	}
}

func TestTokenBudget_Validate(t *testing.T) {
	assert.NoError(t, DefaultTokenBudget().Validate())

	over := DefaultTokenBudget()
	over.SectionCaps[SectionGrounding] = 5000
	assert.True(t, errors.Is(over.Validate(), ErrContextAssembly))

	reserved := TokenBudget{MaxTotalTokens: 100, ReservedForCompletion: 100}
	assert.Error(t, reserved.Validate())

	negative := TokenBudget{MaxTotalTokens: 100, SectionCaps: map[SectionKind]int{SectionCampaign: -1}}
	assert.Error(t, negative.Validate())
}

func TestContextAssembler_OrderAndPrompt(t *testing.T) {
	a := NewContextAssembler()
	got, err := a.Assemble(AssembleInput{
		Snapshot: testSnapshot(),
		Excerpts: []string{"Dwarves have darkvision. (PHB, p.20)", "  "},
		Template: "You are a helpful game master.",
		Request:  &Request{Type: TypeNPC, FreeText: "a grumpy smith", Parameters: map[string]string{"race": "dwarf"}},
		Budget:   DefaultTokenBudget(),
	})
	require.NoError(t, err)

	kinds := make([]SectionKind, 0, len(got.Sections))
	total := 0
	for _, s := range got.Sections {
		kinds = append(kinds, s.Kind)
		total += s.TokenCount + s.HeaderTokens
		assert.Equal(t, node.EstimateTokens(s.Text), s.TokenCount)
		if s.Kind == SectionTemplate {
			assert.Zero(t, s.HeaderTokens)
		} else {
			assert.Equal(t, node.EstimateTokens("\n\n### "+s.SourceLabel+"\n"), s.HeaderTokens)
		}
	}
	assert.Equal(t, []SectionKind{SectionCampaign, SectionSession, SectionRequest, SectionGrounding, SectionTemplate}, kinds)
	assert.Equal(t, total, got.TotalTokens)
	assert.Empty(t, got.Dropped)

	prompt := got.Prompt()
	assert.True(t, strings.HasPrefix(prompt, "You are a helpful game master."))
	assert.Contains(t, prompt, "### Campaign\nCampaign: Shadows over Ironhold\nGame System: D&D 5e")
	assert.Contains(t, prompt, "### Current Session\nSession 3: The Forge Falls")
	assert.Contains(t, prompt, "### Request\nGenerate: npc\nDetails: a grumpy smith\nrace: dwarf")
	assert.Contains(t, prompt, "### Reference Material\n- Dwarves have darkvision. (PHB, p.20)")
	assert.GreaterOrEqual(t, got.TotalTokens, node.EstimateTokens(prompt))

	sec, ok := got.Section(SectionCampaign)
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, sec.Priority)
}

func TestContextAssembler_TruncatesAtSentenceBoundary(t *testing.T) {
	budget := TokenBudget{
		MaxTotalTokens:        200,
		ReservedForCompletion: 50,
		SectionCaps:           map[SectionKind]int{SectionGrounding: 30},
		MinSectionTokens:      5,
	}
	long := strings.Repeat("The forge burns hot. ", 20)

	got, err := NewContextAssembler().Assemble(AssembleInput{
		Request:  &Request{Type: TypeNPC},
		Excerpts: []string{long},
		Budget:   budget,
	})
	require.NoError(t, err)

	sec, ok := got.Section(SectionGrounding)
	require.True(t, ok)
	assert.True(t, sec.Truncated)
	assert.LessOrEqual(t, sec.TokenCount+sec.HeaderTokens, 30)
	assert.Positive(t, sec.HeaderTokens)
	assert.True(t, strings.HasSuffix(sec.Text, "hot."))
}

func TestContextAssembler_DropsSectionBelowMinimum(t *testing.T) {
	budget := TokenBudget{
		MaxTotalTokens:        64,
		ReservedForCompletion: 20,
		MinSectionTokens:      20,
	}
	got, err := NewContextAssembler().Assemble(AssembleInput{
		Request:  &Request{Type: TypeArc, FreeText: strings.Repeat("word ", 25)},
		Template: strings.Repeat("Follow the format carefully. ", 10),
		Budget:   budget,
	})
	require.NoError(t, err)
	assert.Equal(t, []SectionKind{SectionTemplate}, got.Dropped)
	_, ok := got.Section(SectionTemplate)
	assert.False(t, ok)
	assert.LessOrEqual(t, got.TotalTokens, budget.Available())
}

func TestContextAssembler_BudgetTooSmall(t *testing.T) {
	budget := TokenBudget{MaxTotalTokens: 30, ReservedForCompletion: 20, MinSectionTokens: 20}
	_, err := NewContextAssembler().Assemble(AssembleInput{
		Snapshot: testSnapshot(),
		Request:  &Request{Type: TypeNPC},
		Budget:   budget,
	})
	assert.True(t, errors.Is(err, ErrBudgetTooSmall))
}

func TestContextAssembler_HeadersCountAgainstBudget(t *testing.T) {
	// 请求正文恰好占满可用预算，标题开销使其必须截断
	req := &Request{Type: TypeNPC, FreeText: strings.Repeat("The smith sings. ", 8)}
	body := node.EstimateTokens(requestText(req))
	budget := TokenBudget{MaxTotalTokens: body + 10, ReservedForCompletion: 10, MinSectionTokens: 5}

	got, err := NewContextAssembler().Assemble(AssembleInput{Request: req, Budget: budget})
	require.NoError(t, err)

	sec, ok := got.Section(SectionRequest)
	require.True(t, ok)
	assert.True(t, sec.Truncated)
	assert.Equal(t, sec.TokenCount+sec.HeaderTokens, got.TotalTokens)
	assert.LessOrEqual(t, got.TotalTokens, budget.Available())
	assert.LessOrEqual(t, node.EstimateTokens(got.Prompt()), budget.Available())
	assert.True(t, strings.HasPrefix(got.Prompt(), "### Request\n"))
}

func TestTruncateToTokens(t *testing.T) {
	assert.Equal(t, "short", truncateToTokens("short", 10))
	assert.Equal(t, "First line", truncateToTokens("First line\nsecond line is longer", 4))
	assert.Equal(t, "alpha beta", truncateToTokens("alpha beta gamma delta", 3))
	assert.Equal(t, "", truncateToTokens("supercalifragilistic", 2))
}

func TestContextAssembler_RandomizedBudgetInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"dwarf", "forge", "ancient", "dragon", "tavern", "sword.", "quest", "shadow\n", "ruin", "oath"}
	randomText := func(maxWords int) string {
		n := rng.Intn(maxWords + 1)
		parts := make([]string, n)
		for i := range parts {
			parts[i] = words[rng.Intn(len(words))]
		}
		return strings.Join(parts, " ")
	}

	a := NewContextAssembler()
	for i := 0; i < 500; i++ {
		maxTotal := 50 + rng.Intn(2000)
		reserved := rng.Intn(maxTotal / 2)
		available := maxTotal - reserved
		caps := map[SectionKind]int{}
		remaining := available
		for _, k := range []SectionKind{SectionCampaign, SectionSession, SectionGrounding, SectionTemplate} {
			if remaining <= 0 || rng.Intn(3) == 0 {
				continue
			}
			c := rng.Intn(remaining/2 + 1)
			caps[k] = c
			remaining -= c
		}
		budget := TokenBudget{
			MaxTotalTokens:        maxTotal,
			ReservedForCompletion: reserved,
			SectionCaps:           caps,
			MinSectionTokens:      1 + rng.Intn(30),
		}
		require.NoError(t, budget.Validate())

		excerpts := make([]string, rng.Intn(6))
		for j := range excerpts {
			excerpts[j] = randomText(80)
		}
		snap := testSnapshot()
		snap.Description = randomText(400)
		snap.SessionSummary = randomText(400)

		got, err := a.Assemble(AssembleInput{
			Snapshot: snap,
			Excerpts: excerpts,
			Template: randomText(300),
			Request:  &Request{Type: TypeSession, FreeText: randomText(200)},
			Budget:   budget,
		})
		if err != nil {
			require.True(t, errors.Is(err, ErrBudgetTooSmall), "iteration %d: %v", i, err)
			continue
		}

		sum := 0
		for _, s := range got.Sections {
			sum += s.TokenCount + s.HeaderTokens
			require.NotEmpty(t, s.Text)
			if c, ok := caps[s.Kind]; ok {
				require.LessOrEqual(t, s.TokenCount+s.HeaderTokens, c, "iteration %d section %s", i, s.Kind)
			}
		}
		require.Equal(t, sum, got.TotalTokens)
		require.LessOrEqual(t, node.EstimateTokens(got.Prompt()), got.TotalTokens, "iteration %d", i)
		require.LessOrEqual(t, got.TotalTokens, budget.Available(), "iteration %d", i)
		require.LessOrEqual(t, got.TotalTokens, budget.MaxTotalTokens, "iteration %d", i)
	}
}
