// Object pools for reducing GC pressure in the tokenizer
//
// Every G-code line is split into whitespace-separated tokens. The token
// slices are short-lived and the same size line after line, so they are
// pooled instead of allocated per line.
//
// Usage:
//
//	toks := pool.GetStringSlice()
//	defer pool.PutStringSlice(toks)
//	*toks = pool.AppendFields(*toks, line)
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
	"sync/atomic"
)

// maxPooledTokens bounds the slices kept for reuse; longer ones are dropped.
const maxPooledTokens = 256

// StringSlice pool - for line tokens
var stringSlicePool = sync.Pool{
	New: func() any {
		misses.Add(1)
		s := make([]string, 0, 16)
		return &s
	},
}

var gets, misses atomic.Uint64

// GetStringSlice gets an empty string slice from the pool
func GetStringSlice() *[]string {
	gets.Add(1)
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStringSlice returns a string slice to the pool
func PutStringSlice(s *[]string) {
	if s == nil || cap(*s) > maxPooledTokens {
		return
	}
	// Clear to allow GC of the line the tokens point into
	for i := range *s {
		(*s)[i] = ""
	}
	*s = (*s)[:0]
	stringSlicePool.Put(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

// AppendFields appends the ASCII-whitespace separated fields of s to dst.
// The fields are substrings of s.
func AppendFields(dst []string, s string) []string {
	start := -1
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			if start >= 0 {
				dst = append(dst, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		dst = append(dst, s[start:])
	}
	return dst
}

// PoolStats holds statistics about pool usage
type PoolStats struct {
	Gets   uint64
	Misses uint64
}

// Stats returns the number of slices handed out and how many had to be
// allocated.
func Stats() PoolStats {
	return PoolStats{Gets: gets.Load(), Misses: misses.Load()}
}
