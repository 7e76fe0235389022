// Package chunk splits document text into fixed-size overlapping windows
// for embedding and retrieval.
package chunk

import "errors"

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

var ErrInvalidConfig = errors.New("chunk: size must be positive and overlap must be smaller than size")

// Split cuts text into chunks of at most size characters, where each
// chunk after the first repeats the last overlap characters of its
// predecessor. Offsets and sizes are measured in runes so multi-byte
// text chunks the same way it counts.
//
// Joining the first chunk with every later chunk minus its leading
// overlap reproduces the input exactly.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	if text == "" {
		return nil, nil
	}
	runes := []rune(text)
	n := len(runes)
	step := size - overlap
	chunks := make([]string, 0, (n+step-1)/step)
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Join reverses Split for the given overlap.
func Join(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := []rune(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		if overlap < len(r) {
			r = r[overlap:]
		} else {
			r = nil
		}
		out = append(out, r...)
	}
	return string(out)
}
