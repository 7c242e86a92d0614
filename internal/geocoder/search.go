package geocoder

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/namedict"
	"github.com/mapsme/geocore/internal/osmmodel"
	"github.com/mapsme/geocore/internal/tokenize"
)

const (
	// MaxResults bounds the beam's final top-k.
	MaxResults = 100
	// beamSize caps candidates kept per layer.
	beamSize = 10
	// cityStateBonus rewards localities whose name doubles as the
	// region name.
	cityStateBonus = 0.05
	// hnUnitPenalty is the per-unit cost of a house-number mismatch on
	// the candidate side; missing query units cost four times as much.
	hnUnitPenalty      = 0.035
	queryMissFactor    = 4.0
	partialBestCeiling = 0.95
)

// typeWeights index by hierarchy.Type.
var typeWeights = [hierarchy.Count]float64{
	hierarchy.Country:     10,
	hierarchy.Region:      4,
	hierarchy.Subregion:   4,
	hierarchy.Locality:    5,
	hierarchy.Suburb:      1,
	hierarchy.Sublocality: 1,
	hierarchy.Street:      2,
	hierarchy.Building:    0.1,
}

// kindWeights refine the per-type weight: a city outranks a town
// outranks a hamlet.
var kindWeights = map[string]float64{
	"city":    5.05,
	"town":    5.04,
	"village": 5.02,
	"hamlet":  1.06,
}

// streetSynonyms are marked Street for free during a street layer,
// without covering a real entry.
var streetSynonyms = map[string]bool{
	"ул": true, "улица": true, "пер": true, "переулок": true,
	"пр": true, "просп": true, "проспект": true, "ш": true,
	"шоссе": true, "наб": true, "набережная": true, "пл": true,
	"площадь": true, "б-р": true, "бульвар": true,
	"st": true, "str": true, "street": true, "ave": true,
	"avenue": true, "rd": true, "road": true, "ln": true,
	"lane": true, "blvd": true, "boulevard": true, "dr": true,
	"drive": true, "hwy": true, "highway": true,
}

// Result is one ranked geocoder answer.
type Result struct {
	ID        osmmodel.ObjectID
	Doc       int
	Name      string
	Type      hierarchy.Type
	Certainty float64
}

// layerCandidate is one scored entry inside a layer.
type layerCandidate struct {
	doc       int
	certainty float64
	from, to  int
	partial   bool
}

// layer records the candidates placed for one assigned type.
type layer struct {
	t          hierarchy.Type
	candidates []layerCandidate
}

// resultAcc accumulates the best sighting of a doc across recursion
// branches.
type resultAcc struct {
	certainty float64
	partial   bool
	eligible  bool
}

// searchContext owns the token array, the scoped type labels, the layer
// stack and the result accumulator.
type searchContext struct {
	tokens         []string
	tokenTypes     []hierarchy.Type
	layers         []layer
	results        map[int]*resultAcc
	sawHouseNumber bool
}

// Search tokenises the query and runs the recursive beam search across
// the type ladder, returning results sorted by descending certainty,
// the best normalised to 1.0 (0.95 when the best result is a partial
// match).
func (g *Geocoder) Search(query string) []Result {
	tokens := tokenize.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	ctx := &searchContext{
		tokens:     tokens,
		tokenTypes: make([]hierarchy.Type, len(tokens)),
		results:    make(map[int]*resultAcc),
	}
	for i := range ctx.tokenTypes {
		ctx.tokenTypes[i] = hierarchy.Count
	}
	g.searchLevel(ctx, hierarchy.Country)
	return g.formResults(ctx)
}

// searchLevel tries every contiguous unassigned sub-range as the given
// type, recursing deeper with the range scoped to that type, then
// recurses once more with the type skipped.
func (g *Geocoder) searchLevel(ctx *searchContext, t hierarchy.Type) {
	if t == hierarchy.Count {
		return
	}

	var freed []int
	if t == hierarchy.Street {
		for i, tok := range ctx.tokens {
			if ctx.tokenTypes[i] == hierarchy.Count && streetSynonyms[tok] {
				ctx.tokenTypes[i] = hierarchy.Street
				freed = append(freed, i)
			}
		}
	}

	for i := 0; i < len(ctx.tokens); i++ {
		if ctx.tokenTypes[i] != hierarchy.Count {
			continue
		}
		for j := i + 1; j <= len(ctx.tokens) && ctx.tokenTypes[j-1] == hierarchy.Count; j++ {
			candidates := g.candidatesForRange(ctx, t, i, j)
			if len(candidates) == 0 {
				continue
			}
			for k := i; k < j; k++ {
				ctx.tokenTypes[k] = t
			}
			ctx.layers = append(ctx.layers, layer{t: t, candidates: candidates})
			g.recordResults(ctx, candidates, t)
			g.searchLevel(ctx, t+1)
			ctx.layers = ctx.layers[:len(ctx.layers)-1]
			for k := i; k < j; k++ {
				ctx.tokenTypes[k] = hierarchy.Count
			}
		}
	}

	// the type may be absent from the query entirely
	g.searchLevel(ctx, t+1)

	for _, i := range freed {
		ctx.tokenTypes[i] = hierarchy.Count
	}
}

// candidatesForRange scores the entries of type t matching the token
// sub-range [from, to).
func (g *Geocoder) candidatesForRange(ctx *searchContext, t hierarchy.Type, from, to int) []layerCandidate {
	sub := ctx.tokens[from:to]

	if t == hierarchy.Building {
		return g.buildingCandidates(ctx, from, to)
	}

	// a bare number below the locality levels only means something
	// when a locality is already in the context
	if t > hierarchy.Locality && allNumeric(sub) && !ctx.hasLayer(hierarchy.Locality) {
		return nil
	}

	// scan whichever doc list is shorter: prefix hits or the type bucket
	docs := g.docsWithTokenPrefix(sub[0])
	if typed := g.docsByType[t]; len(typed) < len(docs) {
		docs = typed
	}
	var candidates []layerCandidate
	for _, doc := range docs {
		e := &g.entries[doc]
		if e.Type != t {
			continue
		}
		if !g.nameMatchesPrefixSet(doc, sub) {
			continue
		}
		parent, connected := g.parentCertainty(ctx, e)
		if !connected {
			continue
		}
		added := g.addedWeight(e, t) * float64(len(sub))
		certainty := parent + added
		if t == hierarchy.Locality && isCityState(e) {
			certainty += cityStateBonus
		}
		candidates = append(candidates, layerCandidate{
			doc: doc, certainty: certainty, from: from, to: to,
		})
	}
	return topCandidates(candidates)
}

// buildingCandidates matches the sub-range as a house number against
// the buildings related to the most recent layer's candidates.
func (g *Geocoder) buildingCandidates(ctx *searchContext, from, to int) []layerCandidate {
	sub := ctx.tokens[from:to]
	if !LooksLikeHouseNumber(sub) {
		return nil
	}
	ctx.sawHouseNumber = true
	if len(ctx.layers) == 0 {
		return nil
	}
	prev := &ctx.layers[len(ctx.layers)-1]

	best := make(map[int]layerCandidate)
	for _, pc := range prev.candidates {
		g.ForEachRelatedBuilding(pc.doc, func(buildingDoc int) {
			e := &g.entries[buildingDoc]
			match := MatchHouseNumber(sub, e.Name)
			if !match.Matched() {
				return
			}
			penalty := hnUnitPenalty * (queryMissFactor*float64(match.QueryMismatchedTokensCount) +
				float64(match.HouseNumberMismatchedTokensCount))
			certainty := pc.certainty + typeWeights[hierarchy.Building]*float64(len(sub)) - penalty
			cand := layerCandidate{
				doc: buildingDoc, certainty: certainty, from: from, to: to,
				partial: !match.Exact(),
			}
			if cur, ok := best[buildingDoc]; !ok || cand.certainty > cur.certainty {
				best[buildingDoc] = cand
			}
		})
	}
	candidates := make([]layerCandidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	return topCandidates(candidates)
}

// parentCertainty finds the best already-placed candidate the entry is
// addressed under. With no layers the entry stands alone at zero; with
// layers present an unconnected entry is rejected.
func (g *Geocoder) parentCertainty(ctx *searchContext, e *hierarchy.Entry) (float64, bool) {
	if len(ctx.layers) == 0 {
		return 0, true
	}
	prev := &ctx.layers[len(ctx.layers)-1]
	best := -1.0
	for _, pc := range prev.candidates {
		if g.isParentTo(e, pc.doc) && pc.certainty > best {
			best = pc.certainty
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// isParentTo: the entry's normalised address contains the candidate's
// own name position.
func (g *Geocoder) isParentTo(e *hierarchy.Entry, parentDoc int) bool {
	p := &g.entries[parentDoc]
	pos := p.Address[p.Type]
	return pos != namedict.Unspecified && e.Address[p.Type] == pos
}

func (g *Geocoder) addedWeight(e *hierarchy.Entry, t hierarchy.Type) float64 {
	if w, ok := kindWeights[e.PlaceKind]; ok {
		return w
	}
	return typeWeights[t]
}

// isCityState: the locality name equals the region name.
func isCityState(e *hierarchy.Entry) bool {
	return e.Address[hierarchy.Locality] != namedict.Unspecified &&
		e.Address[hierarchy.Locality] == e.Address[hierarchy.Region]
}

// nameMatchesPrefixSet checks that every query token is a prefix of a
// distinct name token.
func (g *Geocoder) nameMatchesPrefixSet(doc int, sub []string) bool {
	nameTokens := g.docTokens[doc]
	used := make([]bool, len(nameTokens))
	for _, q := range sub {
		found := false
		for i, nt := range nameTokens {
			if !used[i] && strings.HasPrefix(nt, q) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (ctx *searchContext) hasLayer(t hierarchy.Type) bool {
	for i := range ctx.layers {
		if ctx.layers[i].t == t {
			return true
		}
	}
	return false
}

func allNumeric(tokens []string) bool {
	for _, tok := range tokens {
		for _, r := range tok {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func topCandidates(candidates []layerCandidate) []layerCandidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].certainty != candidates[j].certainty {
			return candidates[i].certainty > candidates[j].certainty
		}
		return candidates[i].doc < candidates[j].doc
	})
	if len(candidates) > beamSize {
		candidates = candidates[:beamSize]
	}
	return candidates
}

// recordResults folds the layer's candidates into the accumulator,
// tracking post-filter eligibility at placement time.
func (g *Geocoder) recordResults(ctx *searchContext, candidates []layerCandidate, t hierarchy.Type) {
	for _, c := range candidates {
		var eligible bool
		if t == hierarchy.Building {
			// the building's own labelling must form the full
			// locality-street-building chain
			e := &g.entries[c.doc]
			eligible = (e.Address[hierarchy.Locality] != namedict.Unspecified ||
				e.Address[hierarchy.Subregion] != namedict.Unspecified) &&
				e.Address[hierarchy.Street] != namedict.Unspecified &&
				e.Address[hierarchy.Building] != namedict.Unspecified
		} else {
			eligible = ctx.ownRangeCoversHouseNumbers(c)
		}
		acc, ok := ctx.results[c.doc]
		if !ok {
			acc = &resultAcc{certainty: -1}
			ctx.results[c.doc] = acc
		}
		if c.certainty > acc.certainty {
			acc.certainty = c.certainty
			acc.partial = c.partial
		}
		acc.eligible = acc.eligible || eligible
	}
}

// ownRangeCoversHouseNumbers: every house-number-looking token falls in
// the candidate's own consumed range.
func (ctx *searchContext) ownRangeCoversHouseNumbers(c layerCandidate) bool {
	for i, tok := range ctx.tokens {
		if looksLikeHouseNumberToken(tok) && (i < c.from || i >= c.to) {
			return false
		}
	}
	return true
}

// formResults applies the house-number post-filter, normalises
// certainties and sorts descending.
func (g *Geocoder) formResults(ctx *searchContext) []Result {
	var out []Result
	for doc, acc := range ctx.results {
		if ctx.sawHouseNumber && !acc.eligible {
			continue
		}
		e := &g.entries[doc]
		out = append(out, Result{
			ID:        e.ID,
			Doc:       doc,
			Name:      e.Name,
			Type:      e.Type,
			Certainty: acc.certainty,
		})
	}
	if len(out) == 0 {
		return nil
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Certainty != out[j].Certainty {
			return out[i].Certainty > out[j].Certainty
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}

	ceiling := 1.0
	if ctx.results[out[0].Doc].partial {
		ceiling = partialBestCeiling
	}
	scale := ceiling / out[0].Certainty
	for i := range out {
		out[i].Certainty *= scale
	}
	return out
}
