package loopback

import (
	"context"
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"github.com/srediag/plugin-ctc/api"
	"github.com/srediag/plugin-ctc/pkg/frame"
)

// Result holds both sides of an exchange.
type Result struct {
	Sent     frame.Stats
	Received frame.Stats
}

// Runner runs the transmitting side of exchanges on a goroutine pool so
// that both sides progress at once, as two processes would.
type Runner struct {
	pool *ants.Pool
}

// NewRunner returns a Runner allowing size concurrent transmitters.
func NewRunner(size int) (*Runner, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("loopback: pool: %w", err)
	}
	return &Runner{pool: pool}, nil
}

// Exchange transmits data from tx while rx receives into dst, and waits for
// both.
func (r *Runner) Exchange(ctx context.Context, tx, rx api.Transport, data, dst []byte) (Result, error) {
	var res Result
	sent := make(chan error, 1)
	err := r.pool.Submit(func() {
		st, err := tx.Transmit(ctx, data)
		res.Sent = st
		sent <- err
	})
	if err != nil {
		return res, fmt.Errorf("loopback: submit: %w", err)
	}

	received, rerr := rx.Receive(ctx, dst)
	serr := <-sent
	res.Received = received
	return res, errors.Join(serr, rerr)
}

// Release stops the pool.
func (r *Runner) Release() {
	r.pool.Release()
}
