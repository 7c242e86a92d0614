// Package geocoder implements the forward geocoder: hierarchy load,
// the inverted token index, and the token-labelling beam search.
package geocoder

import (
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/logger"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/kv"
	"github.com/mapsme/geocore/internal/namedict"
	"github.com/mapsme/geocore/internal/osmmodel"
	"github.com/mapsme/geocore/internal/tokenize"
)

// IndexFormatVersion pins the binary snapshot layout.
const IndexFormatVersion = 2

// Geocoder owns the loaded hierarchy and its token index. Immutable
// after load; queries share it without locks.
type Geocoder struct {
	dict    *namedict.Dictionary
	entries []hierarchy.Entry

	// docTokens holds each entry's normalised name tokens.
	docTokens [][]string
	// postings maps an exact token to the docs containing it.
	postings map[string][]int
	// sortedTokens supports prefix lookups over the posting keys.
	sortedTokens []string
	// docsByType groups docs per hierarchy level.
	docsByType [hierarchy.Count][]int
	// relatedBuildings lists, per doc, the building docs whose address
	// points back to it.
	relatedBuildings map[int][]int
}

// LoadFromKV reads hierarchy entries from the gzip-able JSONL artifact.
func LoadFromKV(path string, requireVersion bool) (*Geocoder, error) {
	dictBuilder := namedict.NewBuilder()
	var entries []hierarchy.Entry
	seen := make(map[osmmodel.ObjectID]bool)
	dupes := 0

	_, err := kv.ForEach(path, requireVersion, func(id osmmodel.ObjectID, rec *kv.Record) error {
		if seen[id] {
			dupes++
			return nil
		}
		seen[id] = true
		loc := rec.DefaultLocale()
		entry := hierarchy.Entry{
			ID:        id,
			Name:      loc.Name,
			Type:      hierarchy.TypeFromString(rec.Properties.Kind),
			PlaceKind: rec.Properties.Kind,
		}
		for t := hierarchy.Country; t < hierarchy.Count; t++ {
			if v := loc.Address.Slot(t); v != "" {
				entry.Address[t] = dictBuilder.AddString(v)
			}
		}
		entry.Normalize()
		if entry.Type == hierarchy.Count {
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		if errs.IsKind(err, errs.Fatal) {
			return nil, wrapLoadError(err)
		}
		return nil, err
	}
	if dupes > 0 {
		logger.Get().Warn("duplicate hierarchy ids skipped",
			zap.String("file", path), zap.Int("count", dupes))
	}
	g := &Geocoder{dict: dictBuilder.Build(), entries: entries}
	g.buildIndex()
	return g, nil
}

func wrapLoadError(err error) error {
	kind := errs.GenericException
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Code() {
		case errs.ErrUnsupportedVersion:
			kind = errs.NoVersion
		case errs.ErrIO:
			kind = errs.OpenException
		}
	}
	return &errs.LoadError{Kind: kind, Err: err}
}

// snapshot is the msgpack payload of the binary token-index artifact.
type snapshot struct {
	Version int
	Names   []namedict.MultipleNames
	Entries []hierarchy.Entry
}

// SaveSnapshot serialises the geocoder into the fixed-version binary
// archive.
func (g *Geocoder) SaveSnapshot(path string) error {
	names := make([]namedict.MultipleNames, g.dict.Size())
	for i := 1; i < g.dict.Size(); i++ {
		names[i] = g.dict.Get(namedict.Position(i))
	}
	buf, err := msgpack.Marshal(&snapshot{
		Version: IndexFormatVersion,
		Names:   names,
		Entries: g.entries,
	})
	if err != nil {
		return errs.Fatalf(err, errs.ErrBadFormat, "marshal geocoder snapshot")
	}
	if err := os.WriteFile(path, buf, 0666); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "write geocoder snapshot %s", path)
	}
	return nil
}

// LoadSnapshot restores a geocoder from the binary archive; a version
// mismatch is a propagated IndexVersionMismatch.
func LoadSnapshot(path string) (*Geocoder, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.LoadError{Kind: errs.OpenException, Err: err}
	}
	var snap snapshot
	if err := msgpack.Unmarshal(buf, &snap); err != nil {
		return nil, &errs.LoadError{Kind: errs.GenericException, Err: err}
	}
	if snap.Version != IndexFormatVersion {
		return nil, &errs.LoadError{Kind: errs.IndexVersionMismatch}
	}
	dictBuilder := namedict.NewBuilder()
	for i := 1; i < len(snap.Names); i++ {
		dictBuilder.Add(snap.Names[i])
	}
	g := &Geocoder{dict: dictBuilder.Build(), entries: snap.Entries}
	g.buildIndex()
	return g, nil
}

// buildIndex derives the inverted token index, the per-type doc lists
// and the related-building lists.
func (g *Geocoder) buildIndex() {
	g.docTokens = make([][]string, len(g.entries))
	g.postings = make(map[string][]int)
	g.relatedBuildings = make(map[int][]int)

	for doc := range g.entries {
		e := &g.entries[doc]
		tokens := tokenize.Tokenize(e.Name)
		g.docTokens[doc] = tokens
		for _, tok := range dedupTokens(tokens) {
			g.postings[tok] = append(g.postings[tok], doc)
		}
		if e.Type < hierarchy.Count {
			g.docsByType[e.Type] = append(g.docsByType[e.Type], doc)
		}
	}

	g.sortedTokens = make([]string, 0, len(g.postings))
	for tok := range g.postings {
		g.sortedTokens = append(g.sortedTokens, tok)
	}
	sort.Strings(g.sortedTokens)

	// a building relates to every entry whose own name position appears
	// in the building's address
	byNamePos := make(map[namedict.Position][]int)
	for doc := range g.entries {
		e := &g.entries[doc]
		if pos := e.Address[e.Type]; pos != namedict.Unspecified {
			byNamePos[pos] = append(byNamePos[pos], doc)
		}
	}
	for doc := range g.entries {
		e := &g.entries[doc]
		if e.Type != hierarchy.Building {
			continue
		}
		for t := hierarchy.Country; t < hierarchy.Building; t++ {
			pos := e.Address[t]
			if pos == namedict.Unspecified {
				continue
			}
			for _, parent := range byNamePos[pos] {
				if g.entries[parent].Type == t {
					g.relatedBuildings[parent] = append(g.relatedBuildings[parent], doc)
				}
			}
		}
	}
}

// ForEachRelatedBuilding visits the building docs addressed to an entry.
func (g *Geocoder) ForEachRelatedBuilding(doc int, fn func(buildingDoc int)) {
	for _, b := range g.relatedBuildings[doc] {
		fn(b)
	}
}

// Entry exposes a loaded entry by doc id.
func (g *Geocoder) Entry(doc int) *hierarchy.Entry { return &g.entries[doc] }

// Dictionary exposes the shared name dictionary.
func (g *Geocoder) Dictionary() *namedict.Dictionary { return g.dict }

// docsWithTokenPrefix returns docs having any name token with the given
// prefix; exact hits come straight from the posting list.
func (g *Geocoder) docsWithTokenPrefix(prefix string) []int {
	var out []int
	i := sort.SearchStrings(g.sortedTokens, prefix)
	seen := make(map[int]bool)
	for ; i < len(g.sortedTokens) && strings.HasPrefix(g.sortedTokens[i], prefix); i++ {
		for _, doc := range g.postings[g.sortedTokens[i]] {
			if !seen[doc] {
				seen[doc] = true
				out = append(out, doc)
			}
		}
	}
	return out
}

func dedupTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

