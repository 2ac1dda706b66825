package batch

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-discount/internal/domain/discount"
)

// Evaluator decides the discount for a single order.
type Evaluator interface {
	Evaluate(o discount.Order, today time.Time) (discount.Decision, error)
}

// Result describes one processed input line.
type Result struct {
	Line     int
	Order    discount.Order
	Decision discount.Decision
	// Err is set when the order was rejected by the evaluator.
	Err error
}

// Stats summarizes a processed batch.
type Stats struct {
	Orders   int
	Rejected int
	ByRule   map[discount.Rule]int
}

// Processor streams orders through an Evaluator.
type Processor struct {
	Evaluator Evaluator
	// Today is the evaluation date used for every order in the batch.
	Today time.Time
	// Observe, if set, is called after each order is evaluated.
	Observe func(Result)
}

// Run reads JSON-lines orders from r and writes one JSON line per order to w.
//
// Orders rejected by the evaluator produce an error line and processing
// continues. Malformed JSON stops the batch with an error naming the line;
// every line written before it is complete and flushed to w.
// Blank lines are skipped.
func (p *Processor) Run(ctx context.Context, r io.Reader, w io.Writer) (Stats, error) {
	out := bufio.NewWriter(w)
	stats, err := p.run(ctx, r, out)
	if ferr := out.Flush(); ferr != nil && err == nil {
		err = errors.Wrap(ferr, "flush results")
	}
	return stats, err
}

func (p *Processor) run(ctx context.Context, r io.Reader, out *bufio.Writer) (Stats, error) {
	stats := Stats{ByRule: make(map[discount.Rule]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	e := &jx.Encoder{}

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		o, err := DecodeOrder(data)
		if err != nil {
			return stats, errors.Wrapf(err, "decode line %d", line)
		}

		res := Result{Line: line, Order: o}
		res.Decision, res.Err = p.Evaluator.Evaluate(o, p.Today)

		e.Reset()
		stats.Orders++
		if res.Err != nil {
			stats.Rejected++
			EncodeError(e, line, o, res.Err)
		} else {
			stats.ByRule[res.Decision.Rule]++
			EncodeDecision(e, line, o, res.Decision)
		}
		if p.Observe != nil {
			p.Observe(res)
		}

		if _, err := out.Write(e.Bytes()); err != nil {
			return stats, errors.Wrap(err, "write result")
		}
		if err := out.WriteByte('\n'); err != nil {
			return stats, errors.Wrap(err, "write result")
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrapf(err, "read line %d", line+1)
	}
	return stats, nil
}
