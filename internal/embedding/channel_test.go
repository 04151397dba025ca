package embedding

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bertlib/internal/protocol"
	"github.com/hyperjump/bertlib/internal/worker"
	"github.com/hyperjump/bertlib/internal/workertest"
)

func TestMain(m *testing.M) {
	workertest.RunIfHelper()
	os.Exit(m.Run())
}

func startChannel(t *testing.T, mode string, opts ...ChannelOption) *Channel {
	t.Helper()
	h := worker.NewHandle()
	require.NoError(t, h.Start(context.Background(), workertest.Command(mode)))
	c := NewChannel(h, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestChannel_EncodeUninitialized(t *testing.T) {
	c := NewChannel(worker.NewHandle())
	for _, n := range []int{0, 1, 3} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			sentences := make([]string, n)
			out := make([]float32, n*c.Dimensions())
			err := c.Encode(context.Background(), sentences, out)
			require.ErrorIs(t, err, worker.ErrUninitialized)
		})
	}
}

func TestChannel_EncodeConstant(t *testing.T) {
	c := startChannel(t, workertest.ModeConstant)
	out := make([]float32, 2*protocol.EmbeddingLength)
	require.NoError(t, c.Encode(context.Background(), []string{"Rust", "apple"}, out))
	assert.Len(t, out, 768)
	for i, v := range out {
		if v != 1.5 {
			t.Fatalf("out[%d] = %v, want 1.5", i, v)
		}
	}
}

func TestChannel_EncodeEmptyBatch(t *testing.T) {
	c := startChannel(t, workertest.ModeConstant)
	require.NoError(t, c.Encode(context.Background(), nil, nil))

	// the stream stays aligned after an empty request
	out := make([]float32, protocol.EmbeddingLength)
	require.NoError(t, c.Encode(context.Background(), []string{"a"}, out))
	assert.Equal(t, float32(1.5), out[0])
}

func TestChannel_RowsFollowInputOrder(t *testing.T) {
	c := startChannel(t, workertest.ModeHash)
	sentences := []string{"The cat sits outside", "A man is playing guitar", "你好", ""}
	out := make([]float32, len(sentences)*c.Dimensions())
	require.NoError(t, c.Encode(context.Background(), sentences, out))
	for i, s := range sentences {
		for j := 0; j < c.Dimensions(); j++ {
			if got, want := out[i*c.Dimensions()+j], workertest.HashValue(s, j); got != want {
				t.Fatalf("row %d (%q) dim %d = %v, want %v", i, s, j, got, want)
			}
		}
	}
}

func TestChannel_Idempotent(t *testing.T) {
	c := startChannel(t, workertest.ModeHash)
	sentences := []string{"hello", "world", "from", "Go"}
	first, err := c.EmbedBatch(context.Background(), sentences)
	require.NoError(t, err)
	second, err := c.EmbedBatch(context.Background(), sentences)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 4)
	assert.Len(t, first[3], protocol.EmbeddingLength)
}

func TestChannel_TruncatedResponseFails(t *testing.T) {
	c := startChannel(t, workertest.ModeShort)
	out := make([]float32, 2*c.Dimensions())
	err := c.Encode(context.Background(), []string{"a", "b"}, out)
	require.ErrorIs(t, err, protocol.ErrTruncated)
	assert.Equal(t, worker.KindProtocol, worker.KindOf(err))
}

func TestChannel_MalformedTokenFails(t *testing.T) {
	c := startChannel(t, workertest.ModeGarbage)
	out := make([]float32, c.Dimensions())
	err := c.Encode(context.Background(), []string{"a"}, out)
	require.ErrorIs(t, err, protocol.ErrMalformedToken)
	assert.Equal(t, float32(0.25), out[0])
}

func TestChannel_WorkerGoneFails(t *testing.T) {
	c := startChannel(t, workertest.ModeExit)
	require.Eventually(t, func() bool { return !c.handle.Status().Running }, 5*time.Second, 10*time.Millisecond)
	_, err := c.Embed(context.Background(), "a")
	require.Error(t, err)
	kind := worker.KindOf(err)
	assert.True(t, kind == worker.KindTransport || kind == worker.KindProtocol, "kind = %s", kind)
}

func TestChannel_RejectsNULSentence(t *testing.T) {
	c := startChannel(t, workertest.ModeConstant)
	out := make([]float32, 2*c.Dimensions())
	err := c.Encode(context.Background(), []string{"ok", "bad\x00"}, out)
	require.ErrorIs(t, err, protocol.ErrInvalidSentence)

	require.NoError(t, c.Encode(context.Background(), []string{"ok", "fine"}, out))
}

func TestChannel_ShortBuffer(t *testing.T) {
	c := startChannel(t, workertest.ModeConstant)
	err := c.Encode(context.Background(), []string{"a", "b"}, make([]float32, c.Dimensions()))
	require.ErrorIs(t, err, protocol.ErrShortBuffer)
	assert.Equal(t, uint64(0), c.handle.Status().Calls, "no I/O for a short buffer")
}

func TestChannel_TimeoutDiscardsWorker(t *testing.T) {
	c := startChannel(t, workertest.ModeHang, WithTimeout(200*time.Millisecond))
	_, err := c.Embed(context.Background(), "never answered")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.Embed(context.Background(), "again")
	require.ErrorIs(t, err, worker.ErrUninitialized)
}

func TestChannel_CancelledCallerLeavesWorkerHealthy(t *testing.T) {
	c := startChannel(t, workertest.ModeConstant)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make([]float32, c.Dimensions())
	for i := 0; i < 20; i++ {
		err := c.Encode(ctx, []string{"gone"}, out)
		require.ErrorIs(t, err, context.Canceled, "call %d", i)
		assert.Equal(t, worker.KindCancelled, worker.KindOf(err))
	}
	require.True(t, c.handle.Status().Running)

	require.NoError(t, c.Encode(context.Background(), []string{"still served"}, out))
	assert.Equal(t, float32(1.5), out[0])
}

func TestChannel_ErrorsCarryRequestID(t *testing.T) {
	c := NewChannel(worker.NewHandle())
	out := make([]float32, c.Dimensions())

	err := c.Encode(WithRequestID(context.Background(), "host/abc-000042"), []string{"x"}, out)
	require.ErrorIs(t, err, worker.ErrUninitialized)
	assert.True(t, strings.HasPrefix(err.Error(), "request host/abc-000042: "), err.Error())

	err = c.Encode(context.Background(), []string{"x"}, out)
	require.ErrorIs(t, err, worker.ErrUninitialized)
	id, _, found := strings.Cut(strings.TrimPrefix(err.Error(), "request "), ":")
	require.True(t, found, err.Error())
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr, "generated id %q", id)
}

func TestChannel_ConcurrentCallersDoNotInterleave(t *testing.T) {
	c := startChannel(t, workertest.ModeEcho)
	const callers, rounds, batch = 8, 10, 3

	var wg sync.WaitGroup
	errs := make(chan error, callers*rounds)
	for g := 0; g < callers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				nonce := g*1000 + r
				sentences := make([]string, batch)
				for i := range sentences {
					sentences[i] = strconv.Itoa(nonce)
				}
				out := make([]float32, batch*c.Dimensions())
				if err := c.Encode(context.Background(), sentences, out); err != nil {
					errs <- err
					return
				}
				for i, v := range out {
					if v != float32(nonce) {
						errs <- fmt.Errorf("caller %d round %d: out[%d] = %v, want %d", g, r, i, v, nonce)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint64(callers*rounds), c.handle.Status().Calls)
}
