// Package protocol implements the NUL-terminated text framing spoken between the
// library and an embedding worker over the worker's stdin/stdout.
//
// A request is the decimal batch size followed by one sentence per entry, every field
// terminated by a single NUL byte. A response is batch×dim float tokens, each the
// ASCII text of one float terminated by NUL.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Terminator delimits every field on both streams.
const Terminator byte = 0

// EmbeddingLength is the number of floats the worker returns per sentence.
const EmbeddingLength = 384

var (
	// ErrInvalidSentence is returned when a sentence contains the NUL terminator.
	ErrInvalidSentence = errors.New("sentence contains NUL byte")
	// ErrTruncated is returned when the stream ends before a token's terminator.
	ErrTruncated = errors.New("response truncated")
	// ErrMalformedToken is returned when a response token is not a float.
	ErrMalformedToken = errors.New("malformed float token")
	// ErrShortBuffer is returned when the output buffer cannot hold batch×dim values.
	ErrShortBuffer = errors.New("output buffer too small")
)

// ValidateSentences checks that no sentence contains the terminator.
func ValidateSentences(sentences []string) error {
	for i, s := range sentences {
		if idx := strings.IndexByte(s, Terminator); idx >= 0 {
			return fmt.Errorf("sentence %d at byte %d: %w", i, idx, ErrInvalidSentence)
		}
	}
	return nil
}

// AppendRequest appends the request encoding of sentences to dst.
func AppendRequest(dst []byte, sentences []string) []byte {
	dst = strconv.AppendInt(dst, int64(len(sentences)), 10)
	dst = append(dst, Terminator)
	for _, s := range sentences {
		dst = append(dst, s...)
		dst = append(dst, Terminator)
	}
	return dst
}

// WriteRequest validates sentences, writes the request and flushes w. Nothing is
// written when validation fails.
func WriteRequest(w *bufio.Writer, sentences []string) error {
	if err := ValidateSentences(sentences); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(len(sentences))); err != nil {
		return err
	}
	if err := w.WriteByte(Terminator); err != nil {
		return err
	}
	for _, s := range sentences {
		if _, err := w.WriteString(s); err != nil {
			return err
		}
		if err := w.WriteByte(Terminator); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadToken reads one NUL-terminated field and returns it without the terminator.
func ReadToken(r *bufio.Reader) (string, error) {
	b, err := r.ReadBytes(Terminator)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", fmt.Errorf("%w: got %d bytes without terminator", ErrTruncated, len(b))
		}
		return "", err
	}
	return string(b[:len(b)-1]), nil
}

// ReadFloat reads one token and parses it as a float32. Values beyond the float32
// range read as ±Inf.
func ReadFloat(r *bufio.Reader) (float32, error) {
	tok, err := ReadToken(r)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 32)
	// out-of-range values saturate to ±Inf
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedToken, tok)
	}
	return float32(v), nil
}

// ReadEmbeddings reads n rows of dim floats into out, row-major. It stops at the
// first error; positions after the failing token are left untouched.
func ReadEmbeddings(r *bufio.Reader, n, dim int, out []float32) error {
	if len(out) < n*dim {
		return fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(out), n*dim)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			v, err := ReadFloat(r)
			if err != nil {
				return fmt.Errorf("sentence %d, dimension %d: %w", i, j, err)
			}
			out[i*dim+j] = v
		}
	}
	return nil
}
