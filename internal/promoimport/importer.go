// Package promoimport loads promotion documents from gzip-compressed NDJSON
// dumps into the promotion store.
package promoimport

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/retail-orders/internal/domain/promotion"
	"github.com/xenking/retail-orders/internal/storage/postgres"
)

const (
	defaultCapacity  = 1_000_000
	defaultFPR       = 0.001
	defaultBatchSize = 500
	progressEvery    = 100_000
	maxLineSize      = 1 << 20
)

// Store persists parsed promotions.
type Store interface {
	Upsert(ctx context.Context, records []postgres.PromotionRecord) error
}

// Config controls an import run.
type Config struct {
	// Capacity is the expected number of promotions per file.
	Capacity uint
	// BatchSize is the number of promotions written per round trip.
	BatchSize int
	// DryRun parses and deduplicates without writing.
	DryRun bool
}

// Stats summarises an import run.
type Stats struct {
	Parsed     int
	Written    int
	Duplicates int
}

// Importer streams promotion dumps into a Store.
//
// Files are processed concurrently. When the same promotion id appears in
// several files the record from the file listed last wins; within one file
// the last line wins.
type Importer struct {
	store Store
	lg    *zap.Logger
	cfg   Config
}

// New creates an Importer.
func New(store Store, lg *zap.Logger, cfg Config) *Importer {
	if cfg.Capacity == 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Importer{store: store, lg: lg, cfg: cfg}
}

// candidate is a record whose id may also exist in another file.
type candidate struct {
	file   int
	record postgres.PromotionRecord
}

// Import loads files in two passes. The first pass builds one bloom filter of
// promotion ids per file. The second pass parses every document and writes it
// unless another file's filter reports the id; those candidates are resolved
// exactly once all files are scanned.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build filters")
	}

	var (
		mu         sync.Mutex
		stats      Stats
		candidates []candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			var (
				batch   []postgres.PromotionRecord
				held    []candidate
				parsed  int
				written int
			)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := im.write(gctx, batch); err != nil {
					return err
				}
				written += len(batch)
				batch = batch[:0]
				return nil
			}

			err := streamFile(gctx, path, func(line []byte) error {
				doc, err := promotion.ParseDocument(line)
				if err != nil {
					return errors.Wrapf(err, "line %d", parsed+1)
				}
				parsed++
				if parsed%progressEvery == 0 {
					im.lg.Info("Import progress", zap.String("file", path), zap.Int("parsed", parsed))
				}
				rec := postgres.PromotionRecord{Document: doc, Raw: slices.Clone(line)}

				if seenElsewhere(filters, i, doc.ID) {
					held = append(held, candidate{file: i, record: rec})
					return nil
				}
				batch = append(batch, rec)
				if len(batch) >= im.cfg.BatchSize {
					return flush()
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}
			if err := flush(); err != nil {
				return errors.Wrapf(err, "import %s", path)
			}

			im.lg.Info("File imported",
				zap.String("file", path),
				zap.Int("parsed", parsed),
				zap.Int("written", written),
				zap.Int("held", len(held)),
			)

			mu.Lock()
			stats.Parsed += parsed
			stats.Written += written
			candidates = append(candidates, held...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	resolved, dups := resolve(candidates)
	stats.Duplicates = dups
	for chunk := range slices.Chunk(resolved, im.cfg.BatchSize) {
		if err := im.write(ctx, chunk); err != nil {
			return stats, errors.Wrap(err, "write candidates")
		}
		stats.Written += len(chunk)
	}

	return stats, nil
}

func (im *Importer) write(ctx context.Context, records []postgres.PromotionRecord) error {
	if im.cfg.DryRun {
		return nil
	}
	return im.store.Upsert(ctx, records)
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.cfg.Capacity, defaultFPR)
			var count int
			err := streamFile(gctx, path, func(line []byte) error {
				id, err := promotionID(line)
				if err != nil {
					return errors.Wrapf(err, "line %d", count+1)
				}
				filter.AddString(id)
				count++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			im.lg.Debug("Filter built", zap.String("file", path), zap.Int("ids", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// resolve keeps, per promotion id, the candidate from the highest file index,
// preserving line order inside that file. It returns the kept records and the
// number of ids found in more than one file.
func resolve(candidates []candidate) ([]postgres.PromotionRecord, int) {
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return a.file - b.file
	})

	winner := make(map[string]int, len(candidates))
	files := make(map[string]map[int]struct{}, len(candidates))
	for _, c := range candidates {
		id := c.record.Document.ID
		winner[id] = c.file
		if files[id] == nil {
			files[id] = make(map[int]struct{})
		}
		files[id][c.file] = struct{}{}
	}

	var (
		out  []postgres.PromotionRecord
		dups int
	)
	for _, c := range candidates {
		if winner[c.record.Document.ID] == c.file {
			out = append(out, c.record)
		}
	}
	for _, set := range files {
		if len(set) > 1 {
			dups++
		}
	}
	return out, dups
}

func seenElsewhere(filters []*bloom.BloomFilter, self int, id string) bool {
	for j, f := range filters {
		if j != self && f.TestString(id) {
			return true
		}
	}
	return false
}

// streamFile calls fn for every non-blank line of the gzip file at path.
func streamFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// promotionID extracts the id of a promotion document without a full parse.
func promotionID(line []byte) (string, error) {
	var id string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		id = v
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "decode id")
	}
	if id == "" {
		return "", errors.New("id is required")
	}
	return id, nil
}
