package source

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/log"
	"gcodeview/pkg/model"
)

// Loader resolves a location to lines: "-" is stdin, "s3://" URIs go to S3
// and anything else is a local path.
type Loader struct {
	S3Settings config.S3Settings
	Stdin      io.Reader

	mu     sync.Mutex
	s3     *S3
	logger *log.Logger
}

// NewLoader creates a loader using the given S3 settings on first use.
func NewLoader(s config.S3Settings) *Loader {
	return &Loader{S3Settings: s, Stdin: os.Stdin, logger: log.GetLogger("source")}
}

// WithS3 sets the S3 reader used for s3:// URIs.
func (l *Loader) WithS3(s *S3) *Loader {
	l.mu.Lock()
	l.s3 = s
	l.mu.Unlock()
	return l
}

// Load reads every line at location.
func (l *Loader) Load(ctx context.Context, location string) ([]model.Line, error) {
	var (
		lines []model.Line
		err   error
	)
	switch {
	case location == "-":
		lines, err = ReadLines(l.Stdin, 0)
		if err != nil {
			err = errors.SourceError("stdin", err)
		}
	case strings.HasPrefix(location, "s3://"):
		var c *S3
		if c, err = l.s3Client(ctx); err == nil {
			lines, err = c.Read(ctx, location)
		}
	default:
		lines, err = ReadFile(location)
	}
	if err != nil {
		return nil, err
	}
	if l.logger != nil {
		l.logger.WithFields(log.Fields{"source": location, "lines": len(lines)}).Debug("source loaded")
	}
	return lines, nil
}

func (l *Loader) s3Client(ctx context.Context) (*S3, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s3 == nil {
		c, err := NewS3(ctx, l.S3Settings)
		if err != nil {
			return nil, err
		}
		l.s3 = c
	}
	return l.s3, nil
}

// ReadFile reads a local G-code file.
func ReadFile(path string) ([]model.Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.SourceError(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.SourceError(path, err)
	}
	lines, err := ReadLines(f, info.Size())
	if err != nil {
		return nil, errors.SourceError(path, err)
	}
	return lines, nil
}
