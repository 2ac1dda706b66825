package couponfeed

import (
	"context"
	"math/bits"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxFeeds = bits.UintSize

// Options tunes FindCommonCodes.
type Options struct {
	// MinFeeds is how many distinct feeds a code must appear in.
	MinFeeds int
	// MinLen and MaxLen bound accepted code lengths; zero disables a bound.
	MinLen int
	MaxLen int
	// Capacity and FalsePositiveRate size each feed's bloom filter.
	Capacity          uint
	FalsePositiveRate float64
	// ProgressEvery logs progress after this many codes per feed; zero disables it.
	ProgressEvery uint64
}

// DefaultOptions accepts codes present in two feeds.
func DefaultOptions() Options {
	return Options{
		MinFeeds:          2,
		Capacity:          1_000_000,
		FalsePositiveRate: 0.001,
		ProgressEvery:     10_000_000,
	}
}

func (o Options) validate(feeds int) error {
	switch {
	case feeds == 0:
		return errors.New("no feeds given")
	case feeds > maxFeeds:
		return errors.Errorf("at most %d feeds supported, got %d", maxFeeds, feeds)
	case o.MinFeeds < 1:
		return errors.Errorf("min feeds must be at least 1, got %d", o.MinFeeds)
	case o.MinFeeds > feeds:
		return errors.Errorf("min feeds %d exceeds feed count %d", o.MinFeeds, feeds)
	case o.Capacity == 0:
		return errors.New("bloom capacity must be positive")
	case o.FalsePositiveRate <= 0 || o.FalsePositiveRate >= 1:
		return errors.Errorf("false positive rate must be within (0, 1), got %v", o.FalsePositiveRate)
	}
	return nil
}

func (o Options) accepts(code string) bool {
	if o.MinLen > 0 && len(code) < o.MinLen {
		return false
	}
	if o.MaxLen > 0 && len(code) > o.MaxLen {
		return false
	}
	return true
}

// FindCommonCodes returns the sorted codes present in at least opts.MinFeeds
// of the named feeds.
//
// The first pass builds one bloom filter per feed. The second pass re-reads
// each feed and marks a code with the feed's bit when enough other filters
// report it. Bits are only ever set by feeds that really contain the code,
// so bloom false positives never produce a wrong result.
func FindCommonCodes(ctx context.Context, src Source, feeds []string, opts Options) ([]string, error) {
	if err := opts.validate(len(feeds)); err != nil {
		return nil, err
	}
	lg := zctx.From(ctx)

	lg.Info("Building bloom filters", zap.Int("feeds", len(feeds)))
	filters, err := buildFilters(ctx, src, feeds, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Finding common codes", zap.Int("min_feeds", opts.MinFeeds))
	masks, err := markCandidates(ctx, src, feeds, filters, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, bit := range m {
			merged[code] |= bit
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= opts.MinFeeds {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)

	lg.Info("Common codes found", zap.Int("count", len(codes)))
	return codes, nil
}

func buildFilters(ctx context.Context, src Source, feeds []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FalsePositiveRate)
			var count uint64
			err := Scan(ctx, src, name, func(code string) {
				if !opts.accepts(code) {
					return
				}
				filter.AddString(code)
				count++
				logProgress(ctx, opts, "bloom", name, count)
			})
			if err != nil {
				return errors.Wrapf(err, "feed %s", name)
			}
			zctx.From(ctx).Info("Bloom filter built",
				zap.String("feed", name),
				zap.Uint64("codes", count),
			)
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func markCandidates(
	ctx context.Context,
	src Source,
	feeds []string,
	filters []*bloom.BloomFilter,
	opts Options,
) ([]map[string]uint, error) {
	results := make([]map[string]uint, len(feeds))
	// The feed itself counts towards MinFeeds.
	need := opts.MinFeeds - 1

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range feeds {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)
			var count uint64
			err := Scan(ctx, src, name, func(code string) {
				if !opts.accepts(code) {
					return
				}
				count++
				logProgress(ctx, opts, "candidates", name, count)

				seen := 0
				for j, f := range filters {
					if seen >= need {
						break
					}
					if j != i && f.TestString(code) {
						seen++
					}
				}
				if seen >= need {
					candidates[code] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "feed %s", name)
			}
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func logProgress(ctx context.Context, opts Options, pass, feed string, count uint64) {
	if opts.ProgressEvery == 0 || count%opts.ProgressEvery != 0 {
		return
	}
	zctx.From(ctx).Info("Feed progress",
		zap.String("pass", pass),
		zap.String("feed", feed),
		zap.Uint64("codes", count),
	)
}
