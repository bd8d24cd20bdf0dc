package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/agentic-research/qcflat/internal/entrez"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	search  map[string][]string // db + "|" + term
	seqs    map[string]*entrez.GBSeq
	taxa    map[string]*entrez.Taxon
	sra     map[string]*entrez.ExpXML
	samples map[string]*entrez.BioSample
	err     error
	calls   []string
}

func (f *fakeRemote) Search(_ context.Context, db, term string) ([]string, error) {
	f.calls = append(f.calls, "search "+db+" "+term)
	if f.err != nil {
		return nil, f.err
	}
	return f.search[db+"|"+term], nil
}

func (f *fakeRemote) FetchGBSeq(_ context.Context, db, id string) (*entrez.GBSeq, error) {
	f.calls = append(f.calls, "fetch "+db+" "+id)
	seq, ok := f.seqs[id]
	if !ok {
		return nil, entrez.ErrNotFound
	}
	return seq, nil
}

func (f *fakeRemote) FetchTaxon(_ context.Context, id string) (*entrez.Taxon, error) {
	f.calls = append(f.calls, "taxon "+id)
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.taxa[id]
	if !ok {
		return nil, entrez.ErrNotFound
	}
	return tx, nil
}

func (f *fakeRemote) SRASummary(_ context.Context, id string) (*entrez.ExpXML, error) {
	f.calls = append(f.calls, "sra "+id)
	x, ok := f.sra[id]
	if !ok {
		return nil, entrez.ErrNotFound
	}
	return x, nil
}

func (f *fakeRemote) BioSampleSummary(_ context.Context, id string) (*entrez.BioSample, error) {
	f.calls = append(f.calls, "biosample "+id)
	bs, ok := f.samples[id]
	if !ok {
		return nil, entrez.ErrNotFound
	}
	return bs, nil
}

func nucleotideRemote() *fakeRemote {
	return &fakeRemote{
		search: map[string][]string{"nucleotide|NC_045512.2": {"1798174254"}},
		seqs: map[string]*entrez.GBSeq{"1798174254": {
			Definition: "Severe acute respiratory syndrome coronavirus 2 isolate Wuhan-Hu-1, complete genome",
			Organism:   "Severe acute respiratory syndrome coronavirus 2",
			Taxonomy:   "Viruses; Riboviria",
			Comment:    "Genes (total) :: 11",
			Xrefs: []entrez.GBXref{
				{DBName: "BioProject", ID: "PRJNA485481"},
				{DBName: "Assembly", ID: "GCF_009858895.2"},
			},
			Features: []entrez.GBFeature{{Key: "source", Quals: []entrez.GBQualifier{{Name: "db_xref", Value: "taxon:2697049"}}}},
		}},
	}
}

func TestNucleotideCapabilities(t *testing.T) {
	remote := nucleotideRemote()
	e := New(remote, nil)
	ctx := context.Background()

	want := map[string]string{
		"assembly_id":        "GCF_009858895.2",
		"bioproject":         "PRJNA485481",
		"organism":           "Severe acute respiratory syndrome coronavirus 2",
		"lineage":            "Viruses; Riboviria",
		"taxonomy_id":        "2697049",
		"num_genes":          "11",
		"assembly_level":     "complete genome",
		"genomic_section":    "Severe acute respiratory syndrome coronavirus 2 isolate Wuhan-Hu-1",
		"infraspecific_name": "Severe acute respiratory syndrome coronavirus 2 isolate Wuhan-Hu-1",
	}
	for capability, v := range want {
		got, err := e.Enrich(ctx, capability, "NC_045512.2")
		require.NoError(t, err, capability)
		assert.Equal(t, v, got, capability)
	}
	// one search and one fetch serve every column
	assert.Equal(t, []string{"search nucleotide NC_045512.2", "fetch nucleotide 1798174254"}, remote.calls)
}

func TestEnrichMisses(t *testing.T) {
	remote := &fakeRemote{}
	e := New(remote, nil)
	ctx := context.Background()

	v, err := e.Enrich(ctx, "assembly_id", "NOPE_1")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = e.Enrich(ctx, "organism", "NOPE_1")
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Len(t, remote.calls, 1, "a miss is memoised too")

	v, err = e.Enrich(ctx, "lineage", "  ")
	require.NoError(t, err)
	assert.Empty(t, v)
	assert.Len(t, remote.calls, 1, "blank keys never call out")

	_, err = e.Enrich(ctx, "favourite_colour", "x")
	assert.Error(t, err)
	assert.False(t, e.Supports("favourite_colour"))
	assert.True(t, e.Supports("kingdom"))
}

func TestEnrichEmptyRecordIsMiss(t *testing.T) {
	// search hits, but the fetched record or summary is empty
	remote := &fakeRemote{search: map[string][]string{
		"nucleotide|NC_1.1": {"42"},
		"sra|SRR9":          {"43"},
		"biosample|SAMN9":   {"44"},
	}}
	e := New(remote, nil)
	ctx := context.Background()

	for _, capability := range []string{"organism", "lineage", "taxonomy_id", "num_genes", "assembly_level"} {
		v, err := e.Enrich(ctx, capability, "NC_1.1")
		require.NoError(t, err, capability)
		assert.Empty(t, v, capability)
	}
	for _, capability := range []string{"sra_biosample", "sra_strategy"} {
		v, err := e.Enrich(ctx, capability, "SRR9")
		require.NoError(t, err, capability)
		assert.Empty(t, v, capability)
	}
	for _, capability := range []string{"biosample_organism", "biosample_strain"} {
		v, err := e.Enrich(ctx, capability, "SAMN9")
		require.NoError(t, err, capability)
		assert.Empty(t, v, capability)
	}
	assert.Equal(t, []string{
		"search nucleotide NC_1.1", "fetch nucleotide 42",
		"search sra SRR9", "sra 43",
		"search biosample SAMN9", "biosample 44",
	}, remote.calls)
}

func TestEnrichTransportError(t *testing.T) {
	remote := &fakeRemote{err: entrez.ErrRateLimited}
	e := New(remote, nil)

	_, err := e.Enrich(context.Background(), "assembly_id", "NC_1")
	require.ErrorIs(t, err, entrez.ErrRateLimited)

	// not memoised: the next call tries again
	_, _ = e.Enrich(context.Background(), "assembly_id", "NC_1")
	assert.Len(t, remote.calls, 2)
}

func TestSRAAndBioSampleCapabilities(t *testing.T) {
	x, err := entrez.ParseExpXML(`<Instrument ILLUMINA="Illumina MiSeq"/><Library_descriptor><LIBRARY_STRATEGY>WGS</LIBRARY_STRATEGY></Library_descriptor><Biosample>SAMN42</Biosample>`)
	require.NoError(t, err)

	bs := &entrez.BioSample{Accession: "SAMN42"}
	bs.Organism.TaxID = "9913"
	bs.Organism.Name = "Bos taurus"

	remote := &fakeRemote{
		search: map[string][]string{
			"sra|SRR123":       {"77"},
			"biosample|SAMN42": {"5"},
		},
		sra:     map[string]*entrez.ExpXML{"77": x},
		samples: map[string]*entrez.BioSample{"5": bs},
	}
	e := New(remote, nil)
	ctx := context.Background()

	for capability, want := range map[string]string{
		"sra_biosample":  "SAMN42",
		"sra_instrument": "Illumina MiSeq",
		"sra_strategy":   "WGS",
	} {
		got, err := e.Enrich(ctx, capability, "SRR123")
		require.NoError(t, err)
		assert.Equal(t, want, got, capability)
	}
	for capability, want := range map[string]string{
		"biosample_organism":    "Bos taurus",
		"biosample_taxonomy_id": "9913",
		"biosample_strain":      "",
	} {
		got, err := e.Enrich(ctx, capability, "SAMN42")
		require.NoError(t, err)
		assert.Equal(t, want, got, capability)
	}
	assert.Equal(t, []string{"search sra SRR123", "sra 77", "search biosample SAMN42", "biosample 5"}, remote.calls)
}

func TestKingdom(t *testing.T) {
	remote := &fakeRemote{
		search: map[string][]string{"taxonomy|Bos taurus": {"9913"}},
		taxa: map[string]*entrez.Taxon{
			"9913":    {TaxID: "9913", Lineage: "cellular organisms; Eukaryota; Metazoa"},
			"2697049": {TaxID: "2697049", Lineage: "Viruses; Riboviria"},
		},
	}
	fs := memfs.New()
	cache := OpenCache(fs, "tax_cache.json")
	e := New(remote, cache)
	ctx := context.Background()

	k, err := e.Enrich(ctx, "kingdom", "2697049")
	require.NoError(t, err)
	assert.Equal(t, "virus", k)

	k, err = e.Enrich(ctx, "kingdom", "taxon:2697049")
	require.NoError(t, err)
	assert.Equal(t, "virus", k)

	k, err = e.Enrich(ctx, "kingdom", "Bos taurus")
	require.NoError(t, err)
	assert.Equal(t, "other", k)

	k, err = e.Enrich(ctx, "kingdom", "Nonexistent organism")
	require.NoError(t, err)
	assert.Equal(t, KingdomUnknown, k)

	assert.Equal(t, []string{
		"taxon 2697049",
		"search taxonomy Bos taurus",
		"taxon 9913",
		"search taxonomy Nonexistent organism",
	}, remote.calls)

	entry, ok := cache.Get("org:bos taurus")
	require.True(t, ok)
	assert.Equal(t, Entry{Kingdom: "other", TaxID: "9913", Lineage: "cellular organisms; Eukaryota; Metazoa"}, entry)

	// a fresh enricher over the same file answers from disk
	remote2 := &fakeRemote{}
	k, err = New(remote2, OpenCache(fs, "tax_cache.json")).Enrich(ctx, "kingdom", "BOS TAURUS")
	require.NoError(t, err)
	assert.Equal(t, "other", k)
	assert.Empty(t, remote2.calls)
}

func TestKingdomErrorNotCached(t *testing.T) {
	remote := &fakeRemote{err: errors.New("connection reset")}
	fs := memfs.New()
	e := New(remote, OpenCache(fs, "c.json"))

	_, err := e.Enrich(context.Background(), "kingdom", "9606")
	require.Error(t, err)

	_, statErr := fs.Stat("c.json")
	assert.Error(t, statErr, "nothing written on failure")
}

func TestCacheCorruptFile(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "c.json", []byte("{not json"), 0o644))

	c := OpenCache(fs, "c.json")
	_, ok := c.Get("taxid:1")
	assert.False(t, ok)

	require.NoError(t, c.Put("taxid:1", Entry{Kingdom: "bacteria"}))
	e, ok := c.Get("taxid:1")
	require.True(t, ok)
	assert.Equal(t, "bacteria", e.Kingdom)

	data, err := util.ReadFile(fs, "c.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"taxid:1": {"kingdom": "bacteria"}}`, string(data))
}

func TestCacheReadsLegacyEntries(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "c.json",
		[]byte(`{"org:unknown thing": {"tax_id": null, "kingdom": "Unknown"}, "taxid:562": {"kingdom": "bacteria"}}`), 0o644))

	c := OpenCache(fs, "c.json")
	e, ok := c.Get("org:unknown thing")
	require.True(t, ok)
	assert.Equal(t, "Unknown", e.Kingdom)
	assert.Empty(t, e.TaxID)

	require.NoError(t, c.Put("taxid:9606", Entry{Kingdom: "other"}))
	_, ok = c.Get("taxid:562")
	assert.True(t, ok, "existing entries survive an update")
}

func TestCacheWritesOncePerKey(t *testing.T) {
	fs := memfs.New()
	c := OpenCache(fs, "sub/c.json")
	require.NoError(t, c.Put("taxid:1", Entry{Kingdom: "virus"}))
	require.NoError(t, c.Put("taxid:1", Entry{Kingdom: "fungi"}))

	e, ok := c.Get("taxid:1")
	require.True(t, ok)
	assert.Equal(t, "virus", e.Kingdom)
}
