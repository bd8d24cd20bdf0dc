// Package enrich resolves values that live in NCBI rather than in the QC
// documents: assembly and project cross references, organism and lineage,
// SRA run metadata, BioSample attributes and a coarse kingdom class.
//
// Remote records are memoised per key for the life of an Enricher, so the
// several enriched columns of one row share a single round trip. Kingdom
// classifications are also kept in an on-disk Cache across runs.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/agentic-research/qcflat/internal/entrez"
)

// Remote is the slice of the E-utilities client the enricher needs.
type Remote interface {
	Search(ctx context.Context, db, term string) ([]string, error)
	FetchGBSeq(ctx context.Context, db, id string) (*entrez.GBSeq, error)
	FetchTaxon(ctx context.Context, taxID string) (*entrez.Taxon, error)
	SRASummary(ctx context.Context, id string) (*entrez.ExpXML, error)
	BioSampleSummary(ctx context.Context, id string) (*entrez.BioSample, error)
}

type capability func(e *Enricher, ctx context.Context, key string) (string, error)

func fromNucleotide(pick func(*entrez.GBSeq) string) capability {
	return func(e *Enricher, ctx context.Context, key string) (string, error) {
		seq, err := e.nucleotide(ctx, key)
		if err != nil || seq == nil {
			return "", err
		}
		return pick(seq), nil
	}
}

func fromSRA(pick func(*entrez.ExpXML) string) capability {
	return func(e *Enricher, ctx context.Context, key string) (string, error) {
		x, err := e.sraRun(ctx, key)
		if err != nil || x == nil {
			return "", err
		}
		return pick(x), nil
	}
}

func fromBioSample(pick func(*entrez.BioSample) string) capability {
	return func(e *Enricher, ctx context.Context, key string) (string, error) {
		bs, err := e.bioSample(ctx, key)
		if err != nil || bs == nil {
			return "", err
		}
		return pick(bs), nil
	}
}

var capabilities = map[string]capability{
	"assembly_id":        fromNucleotide(func(s *entrez.GBSeq) string { return s.Xref("Assembly") }),
	"bioproject":         fromNucleotide(func(s *entrez.GBSeq) string { return s.Xref("BioProject") }),
	"organism":           fromNucleotide(func(s *entrez.GBSeq) string { return s.Organism }),
	"lineage":            fromNucleotide(func(s *entrez.GBSeq) string { return s.Taxonomy }),
	"taxonomy_id":        fromNucleotide((*entrez.GBSeq).TaxonID),
	"num_genes":          fromNucleotide(func(s *entrez.GBSeq) string { return s.Annotation("Genes (total)") }),
	"assembly_level":     fromNucleotide(func(s *entrez.GBSeq) string { return AssemblyLevel(s.Definition) }),
	"genomic_section":    fromNucleotide(func(s *entrez.GBSeq) string { return GenomicSection(s.Definition) }),
	"infraspecific_name": fromNucleotide(func(s *entrez.GBSeq) string { return InfraspecificName(s.Definition) }),

	"sra_biosample":  fromSRA(func(x *entrez.ExpXML) string { return x.Biosample }),
	"sra_instrument": fromSRA(func(x *entrez.ExpXML) string { return x.Instrument.Model() }),
	"sra_strategy":   fromSRA(func(x *entrez.ExpXML) string { return x.Library.Strategy }),

	"biosample_organism":    fromBioSample((*entrez.BioSample).OrganismName),
	"biosample_taxonomy_id": fromBioSample(func(b *entrez.BioSample) string { return b.Organism.TaxID }),
	"biosample_strain":      fromBioSample(func(b *entrez.BioSample) string { return b.Attribute("strain", "strain_name_alias") }),
	"biosample_isolate":     fromBioSample(func(b *entrez.BioSample) string { return b.Attribute("isolate") }),
	"biosample_id_method":   fromBioSample(func(b *entrez.BioSample) string { return b.Attribute("identification method") }),
	"biosample_bioproject":  fromBioSample((*entrez.BioSample).BioProject),

	"kingdom": (*Enricher).kingdom,
}

// Capabilities lists the supported capability names, sorted.
func Capabilities() []string {
	names := make([]string, 0, len(capabilities))
	for name := range capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enricher implements the projector's enrichment interface over a Remote.
// It is not safe for concurrent use.
type Enricher struct {
	remote Remote
	cache  *Cache

	// nil values record a lookup that found nothing
	nuc  map[string]*entrez.GBSeq
	sra  map[string]*entrez.ExpXML
	bios map[string]*entrez.BioSample

	kingdoms map[string]string
}

// New returns an enricher. cache may be nil, in which case kingdom lookups
// are only memoised in memory.
func New(remote Remote, cache *Cache) *Enricher {
	return &Enricher{
		remote: remote,
		cache:  cache,
		nuc:    make(map[string]*entrez.GBSeq),
		sra:    make(map[string]*entrez.ExpXML),
		bios:   make(map[string]*entrez.BioSample),

		kingdoms: make(map[string]string),
	}
}

// Supports reports whether name is a known capability.
func (e *Enricher) Supports(name string) bool {
	_, ok := capabilities[name]
	return ok
}

// Enrich returns the value of capability for key, or "" when NCBI has no
// such record or field.
func (e *Enricher) Enrich(ctx context.Context, name, key string) (string, error) {
	fn, ok := capabilities[name]
	if !ok {
		return "", fmt.Errorf("enrich: unknown capability %q", name)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	v, err := fn(e, ctx, key)
	if err != nil {
		return "", fmt.Errorf("%s(%s): %w", name, key, err)
	}
	return strings.TrimSpace(v), nil
}

// firstUID runs esearch and returns the first hit, or "" for none.
func (e *Enricher) firstUID(ctx context.Context, db, term string) (string, error) {
	ids, err := e.remote.Search(ctx, db, term)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// The record helpers below memoise a nil record for a miss: no search hit, or
// a hit whose record is empty (entrez.ErrNotFound). Transport errors are not
// memoised.
func (e *Enricher) nucleotide(ctx context.Context, acc string) (*entrez.GBSeq, error) {
	if seq, ok := e.nuc[acc]; ok {
		return seq, nil
	}
	uid, err := e.firstUID(ctx, "nucleotide", acc)
	if err != nil {
		return nil, err
	}
	var seq *entrez.GBSeq
	if uid != "" {
		seq, err = e.remote.FetchGBSeq(ctx, "nucleotide", uid)
		if err != nil && !errors.Is(err, entrez.ErrNotFound) {
			return nil, err
		}
	}
	e.nuc[acc] = seq
	return seq, nil
}

func (e *Enricher) sraRun(ctx context.Context, run string) (*entrez.ExpXML, error) {
	if x, ok := e.sra[run]; ok {
		return x, nil
	}
	uid, err := e.firstUID(ctx, "sra", run)
	if err != nil {
		return nil, err
	}
	var x *entrez.ExpXML
	if uid != "" {
		x, err = e.remote.SRASummary(ctx, uid)
		if err != nil && !errors.Is(err, entrez.ErrNotFound) {
			return nil, err
		}
	}
	e.sra[run] = x
	return x, nil
}

func (e *Enricher) bioSample(ctx context.Context, acc string) (*entrez.BioSample, error) {
	if bs, ok := e.bios[acc]; ok {
		return bs, nil
	}
	uid, err := e.firstUID(ctx, "biosample", acc)
	if err != nil {
		return nil, err
	}
	var bs *entrez.BioSample
	if uid != "" {
		bs, err = e.remote.BioSampleSummary(ctx, uid)
		if err != nil && !errors.Is(err, entrez.ErrNotFound) {
			return nil, err
		}
	}
	e.bios[acc] = bs
	return bs, nil
}

var taxIDPattern = regexp.MustCompile(`^\d+$`)

// kingdom classifies a taxonomy id or, failing that, an organism name.
// Transport failures are returned and never cached.
func (e *Enricher) kingdom(ctx context.Context, key string) (string, error) {
	if id, ok := strings.CutPrefix(key, "taxon:"); ok {
		key = id
	}
	cacheKey := OrgKey(key)
	if taxIDPattern.MatchString(key) {
		cacheKey = TaxIDKey(key)
	}
	if entry, ok := e.lookup(cacheKey); ok {
		return entry.Kingdom, nil
	}

	taxID := key
	if !taxIDPattern.MatchString(key) {
		uid, err := e.firstUID(ctx, "taxonomy", key)
		if err != nil {
			return "", err
		}
		if uid == "" {
			return e.store(cacheKey, Entry{Kingdom: KingdomUnknown}), nil
		}
		taxID = uid
	}

	tx, err := e.remote.FetchTaxon(ctx, taxID)
	if err != nil {
		return "", err
	}
	return e.store(cacheKey, Entry{Kingdom: Kingdom(tx.Lineage), TaxID: taxID, Lineage: tx.Lineage}), nil
}

func (e *Enricher) lookup(key string) (Entry, bool) {
	if k, ok := e.kingdoms[key]; ok {
		return Entry{Kingdom: k}, true
	}
	if e.cache == nil {
		return Entry{}, false
	}
	return e.cache.Get(key)
}

func (e *Enricher) store(key string, entry Entry) string {
	e.kingdoms[key] = entry.Kingdom
	if e.cache != nil {
		if err := e.cache.Put(key, entry); err != nil {
			log.Printf("enrich: cache %s: %v", key, err)
		}
	}
	return entry.Kingdom
}
