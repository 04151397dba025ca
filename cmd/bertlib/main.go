// Command bertlib builds the C shared library:
//
//	go build -buildmode=c-shared -o libbertlib.so ./cmd/bertlib
//
// It exports init_bert, encode, encode_checked, ping, pingStr and shutdown_bert.
// One worker handle per loaded library serves every caller.
package main

import "C"

import (
	"context"
	"fmt"
	"io"
	"os"
	"unsafe"

	"go.uber.org/zap"

	"github.com/hyperjump/bertlib/internal/embedding"
	"github.com/hyperjump/bertlib/internal/protocol"
	"github.com/hyperjump/bertlib/internal/worker"
	"github.com/hyperjump/bertlib/pkg/utils"
)

const debugEnv = "BERTLIB_DEBUG"

var (
	logger  = newLogger()
	handle  = worker.NewHandle(worker.WithLogger(logger))
	channel = embedding.NewChannel(handle, embedding.WithChannelLogger(logger))
)

func newLogger() *zap.Logger {
	l, err := utils.NewLogger(utils.DebugFromEnv(debugEnv))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

//export init_bert
func init_bert(exePath *C.char) {
	path := C.GoString(exePath)
	if err := handle.Initialize(path); err != nil {
		logger.Fatal("init_bert: cannot start worker", zap.String("path", path), zap.Error(err))
	}
}

//export encode
func encode(batch C.int, sentences **C.char, output *C.float) {
	if err := encodeInto(int(batch), sentences, output); err != nil {
		logger.Fatal("encode failed", zap.Stringer("kind", worker.KindOf(err)), zap.Error(err))
	}
}

//export encode_checked
func encode_checked(batch C.int, sentences **C.char, output *C.float) C.int {
	err := encodeInto(int(batch), sentences, output)
	if err != nil {
		logger.Warn("encode failed", zap.Stringer("kind", worker.KindOf(err)), zap.Error(err))
	}
	return C.int(worker.KindOf(err))
}

//export ping
func ping(x C.int) C.int {
	return 2 * x
}

//export pingStr
func pingStr(batch C.int, sentences **C.char) {
	writeSentences(os.Stdout, goStrings(int(batch), sentences))
}

// writeSentences prints each sentence on its own line.
func writeSentences(w io.Writer, sentences []string) {
	for _, s := range sentences {
		fmt.Fprintln(w, s)
	}
}

//export shutdown_bert
func shutdown_bert() {
	if err := handle.Close(); err != nil {
		logger.Warn("shutdown_bert", zap.Error(err))
	}
	_ = logger.Sync()
}

// encodeInto fills output, which the caller sized to batch×384 floats.
func encodeInto(batch int, sentences **C.char, output *C.float) error {
	if batch < 0 {
		return fmt.Errorf("%w: negative batch %d", protocol.ErrInvalidSentence, batch)
	}
	if batch > 0 && sentences == nil {
		return fmt.Errorf("%w: sentences is NULL", protocol.ErrInvalidSentence)
	}
	texts := goStrings(batch, sentences)
	var out []float32
	if n := batch * channel.Dimensions(); n > 0 {
		if output == nil {
			return fmt.Errorf("%w: output is NULL", protocol.ErrShortBuffer)
		}
		out = unsafe.Slice((*float32)(unsafe.Pointer(output)), n)
	}
	return channel.Encode(context.Background(), texts, out)
}

func goStrings(n int, arr **C.char) []string {
	if n <= 0 || arr == nil {
		return []string{}
	}
	ptrs := unsafe.Slice(arr, n)
	texts := make([]string, n)
	for i, p := range ptrs {
		texts[i] = C.GoString(p)
	}
	return texts
}

func main() {}
