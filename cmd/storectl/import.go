package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/bits"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/golden-feast/internal/domain/product"
	"github.com/xenking/golden-feast/internal/storage/postgres"
)

const (
	defaultCapacity = 1_000_000
	defaultFPR      = 0.001
	defaultWorkers  = 8
	progressEvery   = 10_000
	maxLineSize     = 1 << 20
)

func (r *root) importCmd() *cobra.Command {
	imp := importer{
		capacity: defaultCapacity,
		fpr:      defaultFPR,
		workers:  defaultWorkers,
	}
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import catalog exports in JSON-lines format",
		Long: `Import catalog exports in JSON-lines format, one product per line.

Files ending in .gz are decompressed in parallel. When the same product id
appears in several files the copy from the last file on the command line
wins, and the conflict is reported.

Examples:
  storectl import menu-2025-01.jsonl.gz menu-2025-02.jsonl.gz
  storectl import --dry-run export.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp.lg = r.lg
			if dryRun {
				res, err := imp.scan(cmd.Context(), args)
				if err != nil {
					return err
				}
				r.lg.Info("Dry run complete",
					zap.Int("products", res.total()),
					zap.Strings("conflicts", res.conflicts),
				)
				return nil
			}

			pool, err := r.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			_, err = imp.run(cmd.Context(), postgres.NewProductRepository(pool), args)
			return err
		},
	}
	cmd.Flags().UintVar(&imp.capacity, "capacity", imp.capacity, "expected number of products per file")
	cmd.Flags().Float64Var(&imp.fpr, "fpr", imp.fpr, "false positive rate of the duplicate filter")
	cmd.Flags().IntVarP(&imp.workers, "workers", "w", imp.workers, "concurrent upserts")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	return cmd
}

type importer struct {
	lg       *zap.Logger
	capacity uint
	fpr      float64
	workers  int
}

// importFile is one parsed export. Products keep the last occurrence of
// every id in the file.
type importFile struct {
	path     string
	products []product.Product
	filter   *bloom.BloomFilter
}

type scanResult struct {
	files []importFile
	// conflicts lists ids present in more than one file, sorted.
	conflicts []string
	// winner maps a conflicting id to the index of the file that wins.
	winner map[string]int
}

func (s scanResult) total() int {
	var n int
	for _, f := range s.files {
		n += len(f.products)
	}
	return n
}

// run parses every file and upserts the merged catalog into w.
func (imp importer) run(ctx context.Context, w product.Writer, paths []string) (scanResult, error) {
	res, err := imp.scan(ctx, paths)
	if err != nil {
		return res, err
	}
	for _, id := range res.conflicts {
		imp.lg.Warn("Product defined in several files",
			zap.String("id", id),
			zap.String("winner", res.files[res.winner[id]].path),
		)
	}
	if err := imp.write(ctx, w, res); err != nil {
		return res, errors.Wrap(err, "write products")
	}
	return res, nil
}

// scan loads every file and finds ids shared between files in two passes:
// each file first fills its own bloom filter, then checks its ids against
// the other files' filters. An id reported by at least two files is a real
// conflict; an id reported by one file only is a false positive.
func (imp importer) scan(ctx context.Context, paths []string) (scanResult, error) {
	if len(paths) > bits.UintSize {
		return scanResult{}, errors.Errorf("at most %d files can be imported at once", bits.UintSize)
	}
	files := make([]importFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f, err := imp.load(gctx, path)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scanResult{}, err
	}

	candidates := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i := range files {
		g.Go(func() error {
			found := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			for _, p := range files[i].products {
				if err := gctx.Err(); err != nil {
					return err
				}
				for j := range files {
					if j != i && files[j].filter.TestString(p.ID) {
						found[p.ID] |= fileBit
						break
					}
				}
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scanResult{}, err
	}

	merged := make(map[string]uint)
	for _, c := range candidates {
		for id, mask := range c {
			merged[id] |= mask
		}
	}
	res := scanResult{files: files, winner: make(map[string]int)}
	for id, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		res.conflicts = append(res.conflicts, id)
		res.winner[id] = bits.Len(mask) - 1
	}
	slices.Sort(res.conflicts)
	return res, nil
}

// write upserts every product except the losing copies of conflicting ids.
func (imp importer) write(ctx context.Context, w product.Writer, res scanResult) error {
	var written atomic.Int64
	total := res.total()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(imp.workers, 1))
	for i, f := range res.files {
		for _, p := range f.products {
			if win, ok := res.winner[p.ID]; ok && win != i {
				continue
			}
			g.Go(func() error {
				if err := w.Upsert(gctx, p); err != nil {
					return errors.Wrapf(err, "upsert product %s", p.ID)
				}
				if n := written.Add(1); n%progressEvery == 0 {
					imp.lg.Info("Import progress", zap.Int64("written", n), zap.Int("total", total))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	imp.lg.Info("Import completed", zap.Int64("written", written.Load()), zap.Int("conflicts", len(res.conflicts)))
	return nil
}

// load parses one export.
func (imp importer) load(ctx context.Context, path string) (importFile, error) {
	f := importFile{
		path:   path,
		filter: bloom.NewWithEstimates(max(imp.capacity, 1), imp.fpr),
	}
	index := make(map[string]int)
	var line int

	err := streamLines(ctx, path, func(data []byte) error {
		line++
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		var p product.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if at, ok := index[p.ID]; ok {
			f.products[at] = p
			return nil
		}
		index[p.ID] = len(f.products)
		f.products = append(f.products, p)
		f.filter.AddString(p.ID)
		return nil
	})
	if err != nil {
		return importFile{}, err
	}

	imp.lg.Info("File parsed",
		zap.String("path", path),
		zap.Int("lines", line),
		zap.Int("products", len(f.products)),
	)
	return f, nil
}

// streamLines calls fn for each line of path, decompressing .gz files.
func streamLines(ctx context.Context, path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = file.Close() }()

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(file)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
