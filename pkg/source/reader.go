// Package source loads G-code lines from files, stdin or S3 objects.
package source

import (
	"bufio"
	"io"
	"strings"

	"gcodeview/pkg/model"
)

// ReadLines splits r into lines. Each line's Percentage is the byte offset
// of its start relative to size. When size is not positive the total number
// of bytes read is used instead.
func ReadLines(r io.Reader, size int64) ([]model.Line, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		out     []model.Line
		offsets []int64
		offset  int64
	)
	for {
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			offsets = append(offsets, offset)
			offset += int64(len(text))
			out = append(out, model.Line{Text: strings.TrimRight(text, "\r\n")})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	total := size
	if total <= 0 {
		total = offset
	}
	for i := range out {
		if total > 0 {
			out[i].Percentage = float64(offsets[i]) / float64(total) * 100
		}
	}
	return out, nil
}

// FromStrings wraps plain strings as lines with line-count percentages.
func FromStrings(texts []string) []model.Line {
	out := make([]model.Line, len(texts))
	for i, t := range texts {
		out[i] = model.Line{Text: t, Percentage: float64(i) / float64(len(texts)) * 100}
	}
	return out
}
