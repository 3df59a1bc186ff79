/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine_test.go
Description: Tests for the synthesis engine: capture ingestion, incremental diffs,
metadata, RuleSet regeneration and artifact emission over an in-memory Rule Store.
*/

package core

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kleascm/akaylee-mirror/pkg/interfaces"
	"github.com/kleascm/akaylee-mirror/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	capture *interfaces.Capture
	err     error
	targets []string
}

func (f *fakeObserver) Observe(_ context.Context, targetURL string) (*interfaces.Capture, error) {
	f.targets = append(f.targets, targetURL)
	if f.err != nil {
		return nil, f.err
	}
	c := *f.capture
	return &c, nil
}

func (f *fakeObserver) Name() string { return "fake" }

func landingCapture() *interfaces.Capture {
	return &interfaces.Capture{
		ScanID:    "scan-1",
		TargetURL: "https://www.acme.com/",
		FinalURL:  "https://www.acme.com/lobby",
		Observations: []interfaces.Observation{
			{
				URL: "https://www.acme.com/", Method: "GET", Hostname: "www.acme.com",
				ResourceKind: interfaces.KindDocument,
				BodySample:   `<script src="https://cdn.acme.com/app.js"></script>`,
			},
			{
				URL: "https://cdn.acme.com/app.js", Method: "GET", Hostname: "cdn.acme.com",
				ResourceKind: interfaces.KindScript,
				BodySample:   `r.server="https://api.acme.com";r.api="https://api.acme.com/v1";ga("https://www.google-analytics.com/c")`,
			},
			{
				URL: "https://api.acme.com/api/v1/config", Method: "GET", Hostname: "api.acme.com",
				ResourceKind: interfaces.KindXHR,
			},
			{
				URL: "https://api.acme.com/api/v1/9876543210/detail", Method: "POST", Hostname: "api.acme.com",
				ResourceKind: interfaces.KindFetch,
			},
			{URL: "not a url", Method: "GET", ResourceKind: interfaces.KindXHR},
		},
	}
}

func newTestSynthesizer(t *testing.T, observer interfaces.TrafficObserver) (*Synthesizer, *interfaces.MirrorConfig) {
	t.Helper()
	config := interfaces.DefaultConfig()
	config.OutputDir = t.TempDir()
	config.Proxy.PublicHost = "play.local:8080"
	s, err := NewSynthesizer(config, storage.NewMemoryStore(), observer, nil)
	require.NoError(t, err)
	return s, config
}

func TestNewSynthesizerRequiresStore(t *testing.T) {
	_, err := NewSynthesizer(nil, nil, nil, nil)
	assert.ErrorIs(t, err, interfaces.ErrRuleStoreUnavailable)

	config := interfaces.DefaultConfig()
	config.HostMode = "random"
	_, err = NewSynthesizer(config, storage.NewMemoryStore(), nil, nil)
	assert.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSynthesizer(t, nil)

	report, err := s.Ingest(ctx, "acme", landingCapture())
	require.NoError(t, err)

	assert.Equal(t, "scan-1", report.ScanID)
	assert.Equal(t, 5, report.Observations)
	assert.Equal(t, 2, report.NewObservations)
	assert.Equal(t, []string{
		"https://api.acme.com/api/v1/config",
		"https://api.acme.com/api/v1/9876543210/detail",
	}, report.DiscoveredPaths)
	assert.Equal(t, []string{"cdn.acme.com", "api.acme.com"}, report.DiscoveredDomains)
	assert.Equal(t, []string{"not a url"}, report.Skipped)
	assert.False(t, report.Redirected)

	require.Len(t, report.DiscoveredVariables, 1)
	assert.Equal(t, "https://cdn.acme.com/app.js", report.DiscoveredVariables[0].File)

	require.NotNil(t, report.Analysis)
	assert.Len(t, report.Analysis.New, 2)
	assert.Empty(t, report.Analysis.MatchedStatic)

	variables, err := s.Store().GetVariables(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.VariableAssociation{
		{Identifier: "r", Property: "server", MatchedText: "r.server"},
		{Identifier: "r", Property: "api", MatchedText: "r.api"},
	}, variables)

	meta, err := s.Store().GetMetadata(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "www.acme.com", meta[MetaOriginalDomain])
	assert.Equal(t, "www.acme.com", meta[MetaFinalDomain])
	assert.Equal(t, "scan-1", meta[MetaLastScanID])

	// the same session again only matches history
	report, err = s.Ingest(ctx, "acme", landingCapture())
	require.NoError(t, err)
	assert.Equal(t, 0, report.NewObservations)
	assert.Empty(t, report.Analysis.New)
	assert.Equal(t, []string{"https://api.acme.com/api/v1/config"}, report.Analysis.MatchedStatic)
	assert.Equal(t, []string{"https://api.acme.com/api/v1/9876543210/detail"}, report.Analysis.MatchedDynamic)

	stored, err := s.Store().GetObservations(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIngestRecordsRedirect(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSynthesizer(t, nil)

	capture := landingCapture()
	capture.FinalURL = "https://acme-casino.io/lobby"
	report, err := s.Ingest(ctx, "acme", capture)
	require.NoError(t, err)
	assert.True(t, report.Redirected)

	meta, err := s.Store().GetMetadata(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme-casino.io", meta[MetaFinalDomain])
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	capture := landingCapture()
	capture.ScanID = ""
	observer := &fakeObserver{capture: capture}
	s, _ := newTestSynthesizer(t, observer)

	report, err := s.Scan(ctx, "acme", "https://www.acme.com/")
	require.NoError(t, err)
	assert.Equal(t, "fake", report.Observer)
	assert.NotEmpty(t, report.ScanID)
	assert.Equal(t, []string{"https://www.acme.com/"}, observer.targets)

	_, err = s.Scan(ctx, "", "https://www.acme.com/")
	assert.ErrorIs(t, err, interfaces.ErrMissingArgument)
	_, err = s.Scan(ctx, "acme", "")
	assert.ErrorIs(t, err, interfaces.ErrMissingArgument)

	observer.err = errors.New("browser crashed")
	_, err = s.Scan(ctx, "acme", "https://www.acme.com/")
	assert.Error(t, err)

	noObserver, _ := newTestSynthesizer(t, nil)
	_, err = noObserver.Scan(ctx, "acme", "https://www.acme.com/")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	s, config := newTestSynthesizer(t, nil)
	_, err := s.Ingest(ctx, "acme", landingCapture())
	require.NoError(t, err)

	result, err := s.Generate(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(config.OutputDir, "acme", "nginx.conf"), result.Path)
	assert.Equal(t, "api.acme.com", result.RuleSet.DominantHost)
	assert.Equal(t, []string{"api.acme.com", "cdn.acme.com"}, result.RuleSet.Domains)

	fp, err := result.RuleSet.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, result.Fingerprint)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	conf := string(data)
	assert.Contains(t, conf, `location = "/api/v1/config"`)
	assert.Contains(t, conf, `location "/api/v1/"`)
	assert.Contains(t, conf, `r%.server%s*=%s*`)
	assert.Contains(t, conf, "# ruleset:       "+fp)

	// regeneration from unchanged history is byte-identical
	again, err := s.Generate(ctx, "acme", "")
	require.NoError(t, err)
	data2, err := os.ReadFile(again.Path)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestGenerateWithoutTarget(t *testing.T) {
	ctx := context.Background()
	s, config := newTestSynthesizer(t, nil)

	_, err := s.Generate(ctx, "globex", "")
	assert.ErrorIs(t, err, interfaces.ErrNoTargetDomain)
	_, statErr := os.Stat(filepath.Join(config.OutputDir, "globex"))
	assert.True(t, os.IsNotExist(statErr))

	result, err := s.Generate(ctx, "globex", "play.globex.com")
	require.NoError(t, err)
	assert.Equal(t, "play.globex.com", result.RuleSet.DominantHost)
	assert.FileExists(t, result.Path)
}

func TestGenerateRejectsMalformedVariables(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		store   func(t *testing.T) interfaces.RuleStore
		corrupt func(t *testing.T, store interfaces.RuleStore)
	}{
		{
			name: "sqlite payload is not json",
			store: func(t *testing.T) interfaces.RuleStore {
				store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "mirror.db"))
				require.NoError(t, err)
				return store
			},
			corrupt: func(t *testing.T, store interfaces.RuleStore) {
				db, err := sql.Open("sqlite", store.(*storage.SQLiteStore).Path())
				require.NoError(t, err)
				defer db.Close()
				res, err := db.Exec(`UPDATE variables SET payload = ? WHERE vendor = ?`, `[{"identifier":`, "acme")
				require.NoError(t, err)
				n, err := res.RowsAffected()
				require.NoError(t, err)
				require.Positive(t, n)
			},
		},
		{
			name: "empty identifier",
			store: func(t *testing.T) interfaces.RuleStore {
				return storage.NewMemoryStore()
			},
			corrupt: func(t *testing.T, store interfaces.RuleStore) {
				require.NoError(t, store.SetVariables(ctx, "acme", "r", []interfaces.VariableAssociation{
					{Identifier: "", Property: "api", MatchedText: ".api"},
				}))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := interfaces.DefaultConfig()
			config.OutputDir = t.TempDir()
			config.Proxy.PublicHost = "play.local:8080"
			store := tt.store(t)
			defer store.Close()
			s, err := NewSynthesizer(config, store, nil, nil)
			require.NoError(t, err)

			_, err = s.Ingest(ctx, "acme", landingCapture())
			require.NoError(t, err)
			tt.corrupt(t, store)

			for _, target := range []string{"", "play.acme.com"} {
				_, err = s.Generate(ctx, "acme", target)
				assert.ErrorIs(t, err, interfaces.ErrMalformedAssociationData)
			}
			_, statErr := os.Stat(filepath.Join(config.OutputDir, "acme"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestAnalyzeDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSynthesizer(t, nil)
	_, err := s.Ingest(ctx, "acme", landingCapture())
	require.NoError(t, err)

	diff, err := s.Analyze(ctx, "acme", []string{
		"https://api.acme.com/api/v1/config",
		"  ",
		"https://api.acme.com/api/v2/rounds",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://api.acme.com/api/v1/config"}, diff.MatchedStatic)
	require.Len(t, diff.New, 1)
	assert.Equal(t, "https://api.acme.com/api/v2/rounds", diff.New[0].URL)
	assert.True(t, diff.New[0].Static)

	stored, err := s.Store().GetObservations(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = s.Analyze(ctx, "", nil)
	assert.ErrorIs(t, err, interfaces.ErrMissingArgument)
}
