package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bertlib/internal/protocol"
	"github.com/hyperjump/bertlib/internal/worker"
)

// Channel encodes batches over the pipes of a worker.Handle. Calls are fully
// serialized on the handle: one request is written and its whole response read
// before the next caller gets the pipes.
type Channel struct {
	handle     *worker.Handle
	dimensions int
	timeout    time.Duration
	logger     *zap.Logger
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithTimeout bounds every call that arrives without its own deadline.
func WithTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.timeout = d }
}

// WithDimensions overrides the embedding length expected from the worker.
func WithDimensions(n int) ChannelOption {
	return func(c *Channel) {
		if n > 0 {
			c.dimensions = n
		}
	}
}

// WithChannelLogger sets the logger for per-call debug output.
func WithChannelLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChannel returns a channel over h. h must be started before Encode succeeds.
func NewChannel(h *worker.Handle, opts ...ChannelOption) *Channel {
	c := &Channel{
		handle:     h,
		dimensions: protocol.EmbeddingLength,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode writes sentences to the worker and fills out with len(sentences)×Dimensions()
// values, row-major. On error out may be partially written. Errors from the worker
// round trip carry the request id (from WithRequestID, else a fresh uuid).
func (c *Channel) Encode(ctx context.Context, sentences []string, out []float32) error {
	if err := protocol.ValidateSentences(sentences); err != nil {
		return err
	}
	if need := len(sentences) * c.dimensions; len(out) < need {
		return fmt.Errorf("%w: have %d, need %d", protocol.ErrShortBuffer, len(out), need)
	}
	if c.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	start := time.Now()
	err := c.handle.Do(ctx, func(p *worker.Pipes) error {
		if err := protocol.WriteRequest(p.Stdin, sentences); err != nil {
			return fmt.Errorf("%w: write request: %v", worker.ErrTransport, err)
		}
		if err := protocol.ReadEmbeddings(p.Stdout, len(sentences), c.dimensions, out); err != nil {
			if errors.Is(err, protocol.ErrTruncated) || errors.Is(err, protocol.ErrMalformedToken) {
				return err
			}
			return fmt.Errorf("%w: read response: %v", worker.ErrTransport, err)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("encode failed",
			zap.String("request_id", id),
			zap.Int("batch", len(sentences)),
			zap.Stringer("kind", worker.KindOf(err)),
			zap.Error(err),
		)
		return fmt.Errorf("request %s: %w", id, err)
	}
	c.logger.Debug("encode done",
		zap.String("request_id", id),
		zap.Int("batch", len(sentences)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Embed returns the embedding for a single sentence.
func (c *Channel) Embed(ctx context.Context, text string) ([]float32, error) {
	out := make([]float32, c.dimensions)
	if err := c.Encode(ctx, []string{text}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedBatch encodes texts in one round trip.
func (c *Channel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	buf := make([]float32, len(texts)*c.dimensions)
	if err := c.Encode(ctx, texts, buf); err != nil {
		return nil, err
	}
	return Split(buf, c.dimensions), nil
}

// Dimensions returns the embedding length.
func (c *Channel) Dimensions() int {
	return c.dimensions
}

// Close stops the worker behind the channel.
func (c *Channel) Close() error {
	return c.handle.Close()
}
