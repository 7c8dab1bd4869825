// Package catalog bulk-imports products from gzip-compressed JSON Lines
// files.
//
// Each line is one product: {"name","description","brand","price"}. Files are
// given in precedence order: when the same (name, brand) appears in several
// files, only the last file's record is written. Duplicates across files are
// found without holding every key in memory: pass one builds a bloom filter
// per file, pass two collects keys that hit another file's filter together
// with the set of files that really contain them, and pass three writes.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"math/bits"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/hdcontrol/internal/domain/product"
)

// MaxFiles bounds the files of one import; file membership is a bitmask.
const MaxFiles = bits.UintSize

const (
	defaultCapacity = 1_000_000
	defaultFPR      = 0.001
	progressEvery   = 100_000
	maxLineBytes    = 1 << 20
)

// Upserter writes one product keyed by name and brand.
type Upserter interface {
	Upsert(ctx context.Context, p *product.Product) (bool, error)
}

// Options tune an Importer.
type Options struct {
	// Capacity is the expected number of products per file.
	Capacity uint
	// FalsePositiveRate of the per-file bloom filters.
	FalsePositiveRate float64
	// Workers bounds concurrent file writers. Zero means one per file.
	Workers int
}

// Stats summarizes an import.
type Stats struct {
	Inserted   int64
	Updated    int64
	Superseded int64
	Rejected   int64
}

// Importer loads catalog files into an Upserter.
type Importer struct {
	products Upserter
	opts     Options
}

// NewImporter creates an Importer.
func NewImporter(products Upserter, opts Options) *Importer {
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = defaultFPR
	}
	return &Importer{products: products, opts: opts}
}

// record is one parsed line.
type record struct {
	key   string
	input product.Input
}

// keyOf identifies a product across files.
func keyOf(name, brand string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(brand))
}

// Import writes every file. A malformed or invalid line is counted as
// rejected and skipped; store errors abort the import.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	switch {
	case len(files) == 0:
		return Stats{}, errors.New("no files to import")
	case len(files) > MaxFiles:
		return Stats{}, errors.Errorf("at most %d files per import, got %d", MaxFiles, len(files))
	}

	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}
	owners, err := im.findDuplicates(ctx, files, filters)
	if err != nil {
		return Stats{}, errors.Wrap(err, "find duplicates")
	}
	zctx.From(ctx).Info("Duplicate products across files", zap.Int("count", len(owners)))

	return im.write(ctx, files, owners)
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(im.opts.Capacity, im.opts.FalsePositiveRate)
			var n int
			err := streamFile(ctx, path, func(r record) error {
				f.AddString(r.key)
				n++
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			zctx.From(ctx).Info("Pass 1 complete", zap.String("file", path), zap.Int("products", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findDuplicates returns, for every key present in more than one file, the
// index of the last file containing it.
func (im *Importer) findDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]int, error) {
	masks := make([]map[string]uint, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			own := uint(1) << uint(i)
			candidates := make(map[string]uint)
			err := streamFile(ctx, path, func(r record) error {
				for j, f := range filters {
					if j != i && f.TestString(r.key) {
						candidates[r.key] = own
						break
					}
				}
				return nil
			}, nil)
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			masks[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for key, bit := range m {
			merged[key] |= bit
		}
	}
	// A bloom false positive only sets the reporting file's own bit, so
	// keys seen by a single file drop out here.
	owners := make(map[string]int)
	for key, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			owners[key] = bits.Len(mask) - 1
		}
	}
	return owners, nil
}

func (im *Importer) write(ctx context.Context, files []string, owners map[string]int) (Stats, error) {
	var inserted, updated, superseded, rejected atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if im.opts.Workers > 0 {
		g.SetLimit(im.opts.Workers)
	}
	for i, path := range files {
		g.Go(func() error {
			var n int64
			err := streamFile(ctx, path, func(r record) error {
				if owner, dup := owners[r.key]; dup && owner != i {
					superseded.Add(1)
					return nil
				}
				p, err := r.input.Product()
				if err != nil {
					rejected.Add(1)
					zctx.From(ctx).Warn("Product rejected", zap.String("file", path), zap.Error(err))
					return nil
				}
				created, err := im.products.Upsert(ctx, p)
				if err != nil {
					return errors.Wrapf(err, "upsert %q", p.Name)
				}
				if created {
					inserted.Add(1)
				} else {
					updated.Add(1)
				}
				if n++; n%progressEvery == 0 {
					zctx.From(ctx).Info("Write progress", zap.String("file", path), zap.Int64("written", n))
				}
				return nil
			}, func(err error) {
				rejected.Add(1)
				zctx.From(ctx).Warn("Malformed line", zap.String("file", path), zap.Error(err))
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			return nil
		})
	}
	err := g.Wait()
	return Stats{
		Inserted:   inserted.Load(),
		Updated:    updated.Load(),
		Superseded: superseded.Load(),
		Rejected:   rejected.Load(),
	}, err
}

// streamFile calls fn for every parsed line of a gzip JSONL file. Lines that
// fail to parse go to bad when it is set and are skipped silently otherwise.
func streamFile(ctx context.Context, path string, fn func(record) error, bad func(error)) error {
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
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r, err := parseRecord(line)
		if err != nil {
			if bad != nil {
				bad(err)
			}
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func parseRecord(line []byte) (record, error) {
	var in product.Input
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			in.Name, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "brand":
			in.Brand, err = d.Str()
		case "price":
			var num jx.Num
			if num, err = d.Num(); err == nil {
				in.Price, err = decimal.NewFromString(strings.Trim(num.String(), `"`))
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return record{}, errors.Wrap(err, "decode product")
	}
	if strings.TrimSpace(in.Name) == "" {
		return record{}, errors.New("product without name")
	}
	return record{key: keyOf(in.Name, in.Brand), input: in}, nil
}
