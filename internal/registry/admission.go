package registry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/conn"
)

// DefaultInterval is the fallback period between admission scans.
const DefaultInterval = 10 * time.Millisecond

// ErrNoProposal tells the pipeline the channel has not proposed anything yet.
var ErrNoProposal = errors.New("no alias proposed yet")

// Validator inspects a pending channel and returns the alias it proposes.
// ErrNoProposal means "try again later" and is not counted as an attempt;
// errors matched by conn.IsGone mean the channel is gone.
type Validator interface {
	Validate(ch *conn.Channel) (string, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ch *conn.Channel) (string, error)

// Validate calls f(ch).
func (f ValidatorFunc) Validate(ch *conn.Channel) (string, error) { return f(ch) }

// Hooks receive the outcome of each admission decision. Any of them may be nil.
type Hooks struct {
	// Greeting returns the text sent to a channel as it is admitted, ahead of
	// any broadcast.
	Greeting func(ch *conn.Channel) string
	// Admitted runs after the channel moved to the validated set.
	Admitted func(ch *conn.Channel)
	// Rejected runs after a failed attempt. final is true when the channel
	// was dropped for exceeding the attempt limit.
	Rejected func(ch *conn.Channel, err error, final bool)
	// Dropped runs after a channel left the pending set because its
	// transport failed or it exhausted its attempts.
	Dropped func(ch *conn.Channel)
}

// Pipeline drains the pending set through a Validator.
type Pipeline struct {
	reg         *Registry
	validator   Validator
	hooks       Hooks
	interval    time.Duration
	maxAttempts int
	log         *zerolog.Logger

	attempts map[*conn.Channel]int
	wake     chan struct{}
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithInterval sets the scan period.
func WithInterval(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts bounds rejected proposals per channel; 0 means unlimited.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithHooks installs outcome callbacks.
func WithHooks(h Hooks) PipelineOption {
	return func(p *Pipeline) { p.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.log = logger
		}
	}
}

// NewPipeline builds an admission pipeline over reg.
func NewPipeline(reg *Registry, v Validator, opts ...PipelineOption) *Pipeline {
	nop := zerolog.Nop()
	p := &Pipeline{
		reg:       reg,
		validator: v,
		interval:  DefaultInterval,
		log:       &nop,
		attempts:  make(map[*conn.Channel]int),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wake returns the readiness channel pending channels should notify.
func (p *Pipeline) Wake() chan<- struct{} { return p.wake }

// Run scans the pending set until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.wake:
		}
		p.Tick(ctx)
	}
}

// Tick makes one admission decision for every pending channel that has
// proposed something. Tick is not safe for concurrent use.
func (p *Pipeline) Tick(ctx context.Context) {
	pending := p.reg.Pending()
	p.forgetGone(pending)

	for _, ch := range pending {
		if ctx.Err() != nil {
			return
		}
		p.decide(ch)
	}
}

func (p *Pipeline) decide(ch *conn.Channel) {
	alias, err := p.validator.Validate(ch)
	switch {
	case err == nil:
		greeting := ""
		if p.hooks.Greeting != nil {
			greeting = p.hooks.Greeting(ch)
		}
		err = p.reg.AdmitWithGreeting(ch, alias, greeting)
		if err == nil {
			delete(p.attempts, ch)
			p.log.Info().Str("conn_id", ch.ID()).Str("alias", alias).Msg("connection admitted")
			if p.hooks.Admitted != nil {
				p.hooks.Admitted(ch)
			}
			return
		}
		if errors.Is(err, ErrNotPending) {
			return
		}
	case errors.Is(err, ErrNoProposal):
		return
	case conn.IsGone(err):
		p.drop(ch)
		return
	}

	p.reject(ch, err)
}

func (p *Pipeline) reject(ch *conn.Channel, err error) {
	p.attempts[ch]++
	final := p.maxAttempts > 0 && p.attempts[ch] >= p.maxAttempts

	p.log.Debug().
		Err(err).
		Str("conn_id", ch.ID()).
		Int("attempt", p.attempts[ch]).
		Bool("final", final).
		Msg("alias rejected")

	if p.hooks.Rejected != nil {
		p.hooks.Rejected(ch, err, final)
	}
	if final {
		p.drop(ch)
	}
}

func (p *Pipeline) drop(ch *conn.Channel) {
	delete(p.attempts, ch)
	if !p.reg.Remove(ch) {
		return
	}
	if err := ch.Close(); err != nil && !errors.Is(err, conn.ErrClosed) {
		p.log.Debug().Err(err).Str("conn_id", ch.ID()).Msg("close dropped connection")
	}
	p.log.Info().Str("conn_id", ch.ID()).Msg("pending connection dropped")
	if p.hooks.Dropped != nil {
		p.hooks.Dropped(ch)
	}
}

func (p *Pipeline) forgetGone(pending []*conn.Channel) {
	if len(p.attempts) == 0 {
		return
	}
	live := make(map[*conn.Channel]struct{}, len(pending))
	for _, ch := range pending {
		live[ch] = struct{}{}
	}
	for ch := range p.attempts {
		if _, ok := live[ch]; !ok {
			delete(p.attempts, ch)
		}
	}
}
