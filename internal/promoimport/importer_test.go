package promoimport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/retail-orders/internal/domain/promotion"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

type mockStore struct {
	mu      sync.Mutex
	records []postgres.PromotionRecord
	calls   int
	err     error
}

func (m *mockStore) Upsert(_ context.Context, records []postgres.PromotionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

// final returns the description each id ends up with after replaying writes
// in order.
func (m *mockStore) final() map[string]string {
	out := make(map[string]string)
	for _, r := range m.records {
		out[r.Document.ID] = r.Document.Description
	}
	return out
}

func writeDump(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func mustParse(t *testing.T, raw string) *promotion.Document {
	t.Helper()
	d, err := promotion.ParseDocument([]byte(raw))
	require.NoError(t, err)
	return d
}

func doc(id, description string) string {
	return `{"id":"` + id + `","type":"flat_discount","discount_amount":"5.00","description":"` + description + `"}`
}

func TestImporter_Import(t *testing.T) {
	dir := t.TempDir()
	first := writeDump(t, dir, "a.ndjson.gz",
		doc("P1", "first"),
		doc("P2", "only in a"),
		"",
		doc("SHARED", "from a"),
	)
	second := writeDump(t, dir, "b.ndjson.gz",
		doc("SHARED", "from b"),
		doc("P3", "only in b"),
	)

	store := &mockStore{}
	im := New(store, zap.NewNop(), Config{Capacity: 100, BatchSize: 2})

	stats, err := im.Import(context.Background(), []string{first, second})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Parsed)
	assert.Equal(t, 4, stats.Written)
	assert.Equal(t, 1, stats.Duplicates)

	assert.Equal(t, map[string]string{
		"P1":     "first",
		"P2":     "only in a",
		"P3":     "only in b",
		"SHARED": "from b",
	}, store.final())
}

func TestImporter_SameFileLastLineWins(t *testing.T) {
	dir := t.TempDir()
	path := writeDump(t, dir, "a.ndjson.gz",
		doc("P1", "old"),
		doc("P1", "new"),
	)

	store := &mockStore{}
	stats, err := New(store, zap.NewNop(), Config{Capacity: 10}).Import(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Parsed)
	assert.Zero(t, stats.Duplicates)
	assert.Equal(t, "new", store.final()["P1"])
}

func TestImporter_DryRun(t *testing.T) {
	dir := t.TempDir()
	path := writeDump(t, dir, "a.ndjson.gz", doc("P1", "x"), doc("P2", "y"))

	store := &mockStore{}
	stats, err := New(store, zap.NewNop(), Config{DryRun: true}).Import(context.Background(), []string{path})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Parsed)
	assert.Zero(t, store.calls)
}

func TestImporter_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		files func() []string
		store *mockStore
		want  string
	}{
		{
			name:  "missing file",
			files: func() []string { return []string{filepath.Join(dir, "nope.gz")} },
			store: &mockStore{},
			want:  "open",
		},
		{
			name: "invalid document",
			files: func() []string {
				return []string{writeDump(t, dir, "bad.ndjson.gz", `{"id":"X"}`)}
			},
			store: &mockStore{},
			want:  "type is required",
		},
		{
			name: "missing id",
			files: func() []string {
				return []string{writeDump(t, dir, "noid.ndjson.gz", `{"type":"cashback"}`)}
			},
			store: &mockStore{},
			want:  "id is required",
		},
		{
			name: "store failure",
			files: func() []string {
				return []string{writeDump(t, dir, "ok.ndjson.gz", doc("P1", "x"))}
			},
			store: &mockStore{err: errors.New("db down")},
			want:  "db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.store, zap.NewNop(), Config{}).Import(context.Background(), tt.files())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolve(t *testing.T) {
	rec := func(id, description string) postgres.PromotionRecord {
		raw := doc(id, description)
		return postgres.PromotionRecord{Raw: []byte(raw), Document: mustParse(t, raw)}
	}

	out, dups := resolve([]candidate{
		{file: 2, record: rec("A", "a2")},
		{file: 0, record: rec("A", "a0")},
		{file: 1, record: rec("B", "b1")},
		{file: 2, record: rec("A", "a2-later")},
	})

	assert.Equal(t, 1, dups)
	require.Len(t, out, 3)
	assert.Equal(t, "b1", out[0].Document.Description)
	assert.Equal(t, "a2", out[1].Document.Description)
	assert.Equal(t, "a2-later", out[2].Document.Description)
}
