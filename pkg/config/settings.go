package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/model"
)

// ParserSettings tune a parse run.
type ParserSettings struct {
	ChunkRatio     float64
	MaxArcSegments int
	Units          string // "mm" or "inch"
	IncludeLayers  bool
}

// ServerSettings configure the HTTP/websocket front end.
type ServerSettings struct {
	Address     string
	ReadTimeout time.Duration
}

// HistorySettings select the analysis history backend.
type HistorySettings struct {
	Backend string // "memory" or "postgres"
	DSN     string
	Limit   int
}

// S3Settings configure s3:// sources. Empty keys use the default AWS
// credential chain.
type S3Settings struct {
	Region    string
	Endpoint  string
	PathStyle bool
	AccessKey string
	SecretKey string
}

// LogSettings configure the process logger.
type LogSettings struct {
	Level  string
	Format string
	Output string
}

// Settings is the typed view of a settings file.
type Settings struct {
	Parser  ParserSettings
	Tools   []model.ToolOffset
	Server  ServerSettings
	History HistorySettings
	S3      S3Settings
	Log     LogSettings
}

// Defaults returns the settings used when no file is given.
func Defaults() Settings {
	return Settings{
		Parser: ParserSettings{
			ChunkRatio:     0.02,
			MaxArcSegments: 20000,
			Units:          "mm",
		},
		Tools:   []model.ToolOffset{{}},
		Server:  ServerSettings{Address: ":8765", ReadTimeout: 30 * time.Second},
		History: HistorySettings{Backend: "memory", Limit: 100},
		S3:      S3Settings{Region: "us-east-1"},
		Log:     LogSettings{Level: "info", Format: "console"},
	}
}

// LoadSettings reads path and resolves it into Settings. An empty path
// returns Defaults.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return Defaults(), nil
	}
	c, err := Load(path)
	if err != nil {
		return Settings{}, err
	}
	return FromConfig(c)
}

// FromConfig resolves typed settings, applying defaults for missing options.
func FromConfig(c *Config) (Settings, error) {
	s := Defaults()
	var err error

	p := c.GetSectionOptional("parser")
	zero := 0.0
	one := 1.0
	if s.Parser.ChunkRatio, err = p.GetFloatWithBounds("chunk_ratio", FloatBounds{Above: &zero, MaxVal: &one}, s.Parser.ChunkRatio); err != nil {
		return s, err
	}
	if s.Parser.MaxArcSegments, err = p.GetIntWithBounds("max_arc_segments", 8, s.Parser.MaxArcSegments); err != nil {
		return s, err
	}
	if s.Parser.Units, err = p.GetChoice("units", []string{"mm", "inch"}, s.Parser.Units); err != nil {
		return s, err
	}
	if s.Parser.IncludeLayers, err = p.GetBool("include_layers", false); err != nil {
		return s, err
	}

	if s.Tools, err = toolOffsets(c); err != nil {
		return s, err
	}

	srv := c.GetSectionOptional("server")
	if s.Server.Address, err = srv.Get("address", s.Server.Address); err != nil {
		return s, err
	}
	if s.Server.ReadTimeout, err = srv.GetDuration("read_timeout", s.Server.ReadTimeout); err != nil {
		return s, err
	}

	h := c.GetSectionOptional("history")
	if s.History.Backend, err = h.GetChoice("backend", []string{"memory", "postgres"}, s.History.Backend); err != nil {
		return s, err
	}
	if s.History.DSN, err = h.Get("dsn", ""); err != nil {
		return s, err
	}
	if s.History.Backend == "postgres" && s.History.DSN == "" {
		return s, errors.ConfigValidationError("history", "dsn", "required for the postgres backend")
	}
	if s.History.Limit, err = h.GetIntWithBounds("limit", 1, s.History.Limit); err != nil {
		return s, err
	}

	s3 := c.GetSectionOptional("s3")
	if s.S3.Region, err = s3.Get("region", s.S3.Region); err != nil {
		return s, err
	}
	if s.S3.Endpoint, err = s3.Get("endpoint", ""); err != nil {
		return s, err
	}
	if s.S3.PathStyle, err = s3.GetBool("path_style", false); err != nil {
		return s, err
	}
	s.S3.AccessKey, _ = s3.Get("access_key", "")
	s.S3.SecretKey, _ = s3.Get("secret_key", "")

	lg := c.GetSectionOptional("log")
	if s.Log.Level, err = lg.GetChoice("level", []string{"debug", "info", "warn", "error"}, s.Log.Level); err != nil {
		return s, err
	}
	if s.Log.Format, err = lg.GetChoice("format", []string{"console", "json"}, s.Log.Format); err != nil {
		return s, err
	}
	s.Log.Output, _ = lg.Get("output", "")

	return s, nil
}

// toolOffsets reads [tool N] sections. Missing indices get a zero offset.
func toolOffsets(c *Config) ([]model.ToolOffset, error) {
	byIndex := map[int]model.ToolOffset{}
	var indices []int
	for _, sec := range c.GetPrefixSections("tool ") {
		name := sec.GetName()
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(name, "tool ")))
		if err != nil || idx < 0 {
			return nil, errors.ConfigValidationError(name, "", "tool section needs a non-negative index")
		}
		x, err := sec.GetFloat("x", 0)
		if err != nil {
			return nil, err
		}
		y, err := sec.GetFloat("y", 0)
		if err != nil {
			return nil, err
		}
		byIndex[idx] = model.ToolOffset{X: x, Y: y}
		indices = append(indices, idx)
	}
	if len(indices) == 0 {
		return []model.ToolOffset{{}}, nil
	}
	sort.Ints(indices)
	out := make([]model.ToolOffset, indices[len(indices)-1]+1)
	for idx, off := range byIndex {
		out[idx] = off
	}
	return out, nil
}
