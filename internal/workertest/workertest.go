// Package workertest turns a test binary into a synthetic embedding worker.
//
// A test package calls RunIfHelper from TestMain; when the binary is re-executed
// with the mode variable set it serves the pipe protocol instead of running tests.
package workertest

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/hyperjump/bertlib/internal/protocol"
	"github.com/hyperjump/bertlib/internal/worker"
)

const modeEnv = "BERTLIB_WORKERTEST_MODE"

// Worker behaviours.
const (
	// ModeConstant answers every value with 1.5.
	ModeConstant = "constant"
	// ModeEcho parses each sentence as a number and repeats it for every dimension.
	ModeEcho = "echo"
	// ModeHash derives values from an FNV hash of the sentence.
	ModeHash = "hash"
	// ModeShort answers half of the first embedding, then exits.
	ModeShort = "short"
	// ModeGarbage answers a non-numeric token.
	ModeGarbage = "garbage"
	// ModeHang reads the request and never answers.
	ModeHang = "hang"
	// ModeExit exits immediately without reading anything.
	ModeExit = "exit"
	// ModeStubborn never reads stdin, so closing it does not stop the worker.
	ModeStubborn = "stubborn"
)

// Command returns a worker command that re-executes the current test binary in mode.
func Command(mode string) worker.Command {
	return worker.Command{
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env:  []string{modeEnv + "=" + mode},
	}
}

// RunIfHelper serves as a worker and exits when the process was launched by Command.
// It returns immediately otherwise.
func RunIfHelper() {
	mode := os.Getenv(modeEnv)
	if mode == "" {
		return
	}
	if err := run(mode); err != nil {
		fmt.Fprintf(os.Stderr, "workertest %s: %v\n", mode, err)
		os.Exit(2)
	}
	os.Exit(0)
}

func run(mode string) error {
	const dim = protocol.EmbeddingLength
	switch mode {
	case ModeConstant:
		return protocol.Serve(os.Stdin, os.Stdout, dim, fill(func(string, int) float32 { return 1.5 }))
	case ModeEcho:
		return protocol.Serve(os.Stdin, os.Stdout, dim, func(sentences []string) ([][]float32, error) {
			out := make([][]float32, len(sentences))
			for i, s := range sentences {
				v, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, fmt.Errorf("sentence %d is not a nonce: %q", i, s)
				}
				out[i] = repeat(float32(v), dim)
			}
			return out, nil
		})
	case ModeHash:
		return protocol.Serve(os.Stdin, os.Stdout, dim, fill(hashValue))
	case ModeShort, ModeGarbage:
		r := bufio.NewReader(os.Stdin)
		w := bufio.NewWriter(os.Stdout)
		if _, err := protocol.ReadRequest(r); err != nil {
			return err
		}
		if mode == ModeGarbage {
			_, _ = w.WriteString("0.25\x00not-a-float\x00")
			return w.Flush()
		}
		for j := 0; j < dim/2; j++ {
			_, _ = w.WriteString("0.5\x00")
		}
		return w.Flush()
	case ModeHang:
		if _, err := protocol.ReadRequest(bufio.NewReader(os.Stdin)); err != nil {
			return err
		}
		time.Sleep(time.Hour)
		return nil
	case ModeExit:
		return nil
	case ModeStubborn:
		time.Sleep(time.Hour)
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// HashValue is the value ModeHash writes for sentence s at dimension j.
func HashValue(s string, j int) float32 {
	return hashValue(s, j)
}

func hashValue(s string, j int) float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	// multiples of 1/64 below 64 survive the eight-digit text encoding exactly
	return float32((h.Sum32()+uint32(j)*2654435761)%4096) / 64
}

func fill(value func(s string, j int) float32) protocol.EncodeFunc {
	return func(sentences []string) ([][]float32, error) {
		out := make([][]float32, len(sentences))
		for i, s := range sentences {
			row := make([]float32, protocol.EmbeddingLength)
			for j := range row {
				row[j] = value(s, j)
			}
			out[i] = row
		}
		return out, nil
	}
}

func repeat(v float32, n int) []float32 {
	row := make([]float32, n)
	for i := range row {
		row[i] = v
	}
	return row
}
