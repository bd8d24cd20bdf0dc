package entrez

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gbXML = `<?xml version="1.0"?>
<GBSet>
  <GBSeq>
    <GBSeq_locus>NC_045512</GBSeq_locus>
    <GBSeq_definition>Severe acute respiratory syndrome coronavirus 2 isolate Wuhan-Hu-1, complete genome</GBSeq_definition>
    <GBSeq_primary-accession>NC_045512</GBSeq_primary-accession>
    <GBSeq_accession-version>NC_045512.2</GBSeq_accession-version>
    <GBSeq_organism>Severe acute respiratory syndrome coronavirus 2</GBSeq_organism>
    <GBSeq_taxonomy>Viruses; Riboviria; Orthornavirae</GBSeq_taxonomy>
    <GBSeq_comment>REVIEWED REFSEQ; ##Genome-Annotation-Data-START## ; Annotation Provider :: NCBI ; Genes (total) :: 1,234 ; ##Genome-Annotation-Data-END##</GBSeq_comment>
    <GBSeq_feature-table>
      <GBFeature>
        <GBFeature_key>source</GBFeature_key>
        <GBFeature_quals>
          <GBQualifier><GBQualifier_name>organism</GBQualifier_name><GBQualifier_value>SARS-CoV-2</GBQualifier_value></GBQualifier>
          <GBQualifier><GBQualifier_name>db_xref</GBQualifier_name><GBQualifier_value>taxon:2697049</GBQualifier_value></GBQualifier>
        </GBFeature_quals>
      </GBFeature>
    </GBSeq_feature-table>
    <GBSeq_xrefs>
      <GBXref><GBXref_dbname>BioProject</GBXref_dbname><GBXref_id>PRJNA485481</GBXref_id></GBXref>
      <GBXref><GBXref_dbname>Assembly</GBXref_dbname><GBXref_id>GCF_009858895.2</GBXref_id></GBXref>
    </GBSeq_xrefs>
  </GBSeq>
</GBSet>`

const taxonXML = `<?xml version="1.0" ?>
<TaxaSet><Taxon>
  <TaxId>2697049</TaxId>
  <ScientificName>Severe acute respiratory syndrome coronavirus 2</ScientificName>
  <Rank>no rank</Rank>
  <Lineage>Viruses; Riboviria; Orthornavirae</Lineage>
  <LineageEx><Taxon><TaxId>10239</TaxId><ScientificName>Viruses</ScientificName></Taxon></LineageEx>
</Taxon></TaxaSet>`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL + "/", APIKey: "k", Email: "lab@example.org"})
	var slept []time.Duration
	c.throttle.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestNewIntervals(t *testing.T) {
	assert.Equal(t, IntervalWithKey, New(Config{APIKey: "k"}).Interval())
	assert.Equal(t, IntervalNoKey, New(Config{}).Interval())
	assert.Equal(t, time.Second, New(Config{Interval: time.Second}).Interval())
}

func TestSearch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/esearch.fcgi", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "taxonomy", q.Get("db"))
		assert.Equal(t, "Bos taurus", q.Get("term"))
		assert.Equal(t, "k", q.Get("api_key"))
		assert.Equal(t, "lab@example.org", q.Get("email"))
		assert.Equal(t, DefaultTool, q.Get("tool"))
		_, _ = w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["9913", "9915"]}}`))
	})

	ids, err := c.Search(context.Background(), "taxonomy", "Bos taurus")
	require.NoError(t, err)
	assert.Equal(t, []string{"9913", "9915"}, ids)
}

func TestRateLimitRetry(t *testing.T) {
	t.Run("retried once then succeeds", func(t *testing.T) {
		hits := 0
		c, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			if hits == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"esearchresult": {"idlist": ["1"]}}`))
		})

		ids, err := c.Search(context.Background(), "nucleotide", "x")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids)
		assert.Equal(t, 2, hits)
		assert.Contains(t, *slept, RetryBackoff)
	})

	t.Run("second 429 is an error", func(t *testing.T) {
		hits := 0
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := c.Search(context.Background(), "nucleotide", "x")
		require.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, 2, hits)
	})

	t.Run("other statuses are not retried", func(t *testing.T) {
		hits := 0
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := c.Search(context.Background(), "nucleotide", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
		assert.Equal(t, 1, hits)
	})
}

func TestThrottleSpacing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration
	th := NewThrottle(340 * time.Millisecond)
	th.now = func() time.Time { return now }
	th.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, th.Wait(ctx))
	assert.Empty(t, slept, "first call does not wait")
	th.Done()

	now = now.Add(100 * time.Millisecond)
	require.NoError(t, th.Wait(ctx))
	th.Done()
	assert.Equal(t, []time.Duration{240 * time.Millisecond}, slept)

	now = now.Add(time.Second)
	require.NoError(t, th.Wait(ctx))
	assert.Len(t, slept, 1, "no wait once the interval has passed")
}

func TestThrottleCancelled(t *testing.T) {
	th := NewThrottle(time.Hour)
	th.Done()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, th.Wait(ctx), context.Canceled)
}

func TestFetchGBSeq(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/efetch.fcgi", r.URL.Path)
		assert.Equal(t, "gb", r.URL.Query().Get("rettype"))
		assert.Equal(t, "xml", r.URL.Query().Get("retmode"))
		_, _ = w.Write([]byte(gbXML))
	})

	seq, err := c.FetchGBSeq(context.Background(), "nucleotide", "NC_045512.2")
	require.NoError(t, err)
	assert.Equal(t, "NC_045512.2", seq.AccessionVersion)
	assert.Equal(t, "2697049", seq.TaxonID())
	assert.Equal(t, "GCF_009858895.2", seq.Xref("Assembly"))
	assert.Equal(t, "PRJNA485481", seq.Xref("BioProject"))
	assert.Equal(t, "", seq.Xref("BioSample"))
	assert.Equal(t, "1234", seq.Annotation("Genes (total)"))
	assert.Equal(t, "", seq.Annotation("Pseudo Genes (total)"))
}

func TestFetchGBSeqEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<GBSet></GBSet>`))
	})
	_, err := c.FetchGBSeq(context.Background(), "nucleotide", "X")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchTaxon(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "taxonomy", r.URL.Query().Get("db"))
		_, _ = w.Write([]byte(taxonXML))
	})

	tx, err := c.FetchTaxon(context.Background(), "2697049")
	require.NoError(t, err)
	assert.Equal(t, "2697049", tx.TaxID)
	assert.Equal(t, "Viruses; Riboviria; Orthornavirae", tx.Lineage)
}

func TestSRASummary(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/esummary.fcgi", r.URL.Path)
		_, _ = w.Write([]byte(`{"result": {"uids": ["77"], "77": {"uid": "77",
			"expxml": "<Summary><Title>t</Title></Summary><Instrument ILLUMINA=\"Illumina MiSeq\"/><Library_descriptor><LIBRARY_NAME>L</LIBRARY_NAME><LIBRARY_STRATEGY>WGS</LIBRARY_STRATEGY></Library_descriptor><Organism taxid=\"9913\" ScientificName=\"Bos taurus\"/><Bioproject>PRJNA1</Bioproject><Biosample>SAMN42</Biosample>"}}}`))
	})

	x, err := c.SRASummary(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "Illumina MiSeq", x.Instrument.Model())
	assert.Equal(t, "WGS", x.Library.Strategy)
	assert.Equal(t, "SAMN42", x.Biosample)
	assert.Equal(t, "PRJNA1", x.Bioproject)
	assert.Equal(t, "9913", x.Organism.TaxID)
}

func TestBioSampleSummary(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"uids": ["5"], "5": {"uid": "5",
			"sampledata": "<BioSample accession=\"SAMN42\"><Ids><Id db=\"BioSample\">SAMN42</Id></Ids><Description><Organism taxonomy_id=\"9913\" taxonomy_name=\"Bos taurus\"><OrganismName>Bos taurus</OrganismName></Organism></Description><Attributes><Attribute attribute_name=\"strain\" harmonized_name=\"strain\">Angus</Attribute><Attribute attribute_name=\"isolate_name\" harmonized_name=\"isolate\">cow-7</Attribute></Attributes><Links><Link type=\"entrez\" target=\"bioproject\" label=\"PRJNA9\">9</Link></Links></BioSample>"}}}`))
	})

	bs, err := c.BioSampleSummary(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "SAMN42", bs.Accession)
	assert.Equal(t, "Bos taurus", bs.OrganismName())
	assert.Equal(t, "9913", bs.Organism.TaxID)
	assert.Equal(t, "Angus", bs.Attribute("strain"))
	assert.Equal(t, "cow-7", bs.Attribute("isolate"))
	assert.Equal(t, "PRJNA9", bs.BioProject())
}

func TestSummaryMissingUID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"uids": []}}`))
	})
	_, err := c.Summary(context.Background(), "sra", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}
