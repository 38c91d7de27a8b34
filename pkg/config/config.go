// Package config reads gcodeview settings from INI-style files and keeps the
// runtime option store used by worker setOption requests.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gcodeview/pkg/errors"
)

// Config is a parsed settings file. Sections keep file order.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates a new empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads a settings file. [include path] directives pull in other files
// relative to the including file; glob patterns are allowed.
func Load(path string) (*Config, error) {
	c := New()
	if err := c.parseFile(path, make(map[string]bool)); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses settings from a string. Include directives are rejected.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(strings.NewReader(data), "", "", nil); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "invalid path").SetFile(path)
	}
	if visited[abs] {
		return errors.New(errors.ErrConfigSection, "recursive include").SetFile(path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "unable to open").SetFile(path)
	}
	defer f.Close()

	return c.parse(f, path, filepath.Dir(abs), visited)
}

// parse reads sections from r. name is used in error messages; dir and
// visited are nil/empty when includes are not permitted.
func (c *Config) parse(r io.Reader, name, dir string, visited map[string]bool) error {
	var current string
	var options map[string]string

	flush := func() {
		if current != "" {
			c.addSection(current, options)
		}
	}

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return errors.New(errors.ErrConfigSection, "empty section header").SetFile(name).SetLine(lineNum)
			}

			if strings.HasPrefix(header, "include ") {
				if visited == nil {
					return errors.New(errors.ErrConfigSection, "include not allowed here").SetFile(name).SetLine(lineNum)
				}
				if err := c.include(strings.TrimSpace(header[8:]), dir, visited); err != nil {
					return err
				}
				current, options = "", nil
				continue
			}

			current = header
			options = make(map[string]string)
			continue
		}

		// Options before the first section are ignored.
		if current == "" {
			continue
		}

		// key: value or key = value, whichever separator comes first
		sep := strings.IndexAny(line, ":=")
		if sep < 0 {
			continue
		}
		key := strings.TrimSpace(line[:sep])
		if key == "" {
			continue
		}
		options[key] = strings.TrimSpace(line[sep+1:])
	}
	flush()

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, "read failed").SetFile(name)
	}
	return nil
}

func (c *Config) include(spec, dir string, visited map[string]bool) error {
	if spec == "" {
		return errors.New(errors.ErrConfigSection, "empty include")
	}
	glob := filepath.Join(dir, spec)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSection, fmt.Sprintf("invalid include pattern %q", spec))
	}
	sort.Strings(matches)
	if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
		return errors.New(errors.ErrConfigSection, "include file does not exist").SetFile(glob)
	}
	for _, m := range matches {
		if err := c.parseFile(m, visited); err != nil {
			return err
		}
	}
	return nil
}

// addSection adds a section, merging options into an existing one.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sec, ok := c.sections[name]
	if !ok {
		return nil, errors.ConfigSectionError(name)
	}
	return sec, nil
}

// GetSectionOptional returns a Section if it exists. A missing section is
// returned as an empty one so typed getters fall back to their defaults.
func (c *Config) GetSectionOptional(name string) *Section {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sec, ok := c.sections[name]; ok {
		return sec
	}
	return newSection(name, nil)
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// GetPrefixSections returns all sections that start with the given prefix.
func (c *Config) GetPrefixSections(prefix string) []*Section {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var result []*Section
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			result = append(result, c.sections[name])
		}
	}
	return result
}

// Merge combines another Config into this one.
// Sections and options from other override this Config.
func (c *Config) Merge(other *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for _, name := range other.order {
		otherSec := other.sections[name]
		if existing, ok := c.sections[name]; ok {
			for k, v := range otherSec.options {
				existing.options[k] = v
			}
			continue
		}
		c.sections[name] = newSection(name, otherSec.options)
		c.order = append(c.order, name)
	}
}
