package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/eternnoir/whispscribe/pkg/params"
)

// Settings record keys.
const (
	KeyWhisperBin      = "whisper_bin"
	KeyModelPath       = "model_path"
	KeyFFmpegBin       = "ffmpeg_bin"
	KeyLanguage        = "lang"
	KeyOutputDir       = "outdir"
	KeyExtraArgs       = "extra_args"
	KeyContextFlag     = "ctx_flag"
	KeyContextSize     = "ctx_size"
	KeyThreads         = "threads"
	KeyOutputTxt       = "output_txt"
	KeyOutputSrt       = "output_srt"
	KeyOutputVtt       = "output_vtt"
	KeyKeepAudio       = "keep_wav"
	KeyOverwrite       = "overwrite"
	KeyPerFileSubdir   = "per_file_subdir"
	KeyRecentInputDir  = "recent_input_dir"
	KeyRecentOutputDir = "recent_output_dir"
	KeyParams          = "params"
)

type field struct {
	key      string   // settings record key
	external string   // external file key, empty if not settable there
	aliases  []string // legacy settings keys, lower precedence than key
	apply    func(c *Config, v any) error
}

var fields = []field{
	{key: KeyWhisperBin, external: "WHISPER_BIN", apply: stringField(func(c *Config) *string { return &c.WhisperBin })},
	{key: KeyModelPath, external: "WHISPER_MODEL", apply: stringField(func(c *Config) *string { return &c.ModelPath })},
	{key: KeyFFmpegBin, external: "FFMPEG_BIN", apply: stringField(func(c *Config) *string { return &c.FFmpegBin })},
	{key: KeyLanguage, external: "LANG", apply: nonEmptyStringField(func(c *Config) *string { return &c.Language })},
	{key: KeyOutputDir, external: "OUTDIR", apply: stringField(func(c *Config) *string { return &c.OutputDir })},
	{key: KeyExtraArgs, external: "EXTRA_ARGS", apply: stringField(func(c *Config) *string { return &c.ExtraArgs })},
	{key: KeyContextFlag, external: "CTX_FLAG", apply: stringField(func(c *Config) *string { return &c.ContextFlag })},
	{key: KeyContextSize, external: "CTX_SIZE", apply: intField(func(c *Config) *int { return &c.ContextSize })},
	{key: KeyThreads, external: "THREADS", apply: intField(func(c *Config) *int { return &c.Threads })},
	{key: KeyOutputTxt, external: "OUTPUT_TXT", apply: boolField(func(c *Config) *bool { return &c.OutputTxt })},
	{key: KeyOutputSrt, external: "OUTPUT_SRT", apply: boolField(func(c *Config) *bool { return &c.OutputSrt })},
	{key: KeyOutputVtt, external: "OUTPUT_VTT", apply: boolField(func(c *Config) *bool { return &c.OutputVtt })},
	{key: KeyKeepAudio, external: "KEEP_WAV", aliases: []string{"KEEP_WAV"}, apply: boolField(func(c *Config) *bool { return &c.KeepAudio })},
	{key: KeyOverwrite, external: "OVERWRITE", aliases: []string{"OVERWRITE"}, apply: boolField(func(c *Config) *bool { return &c.Overwrite })},
	{key: KeyPerFileSubdir, external: "PER_FILE_SUBDIR", apply: boolField(func(c *Config) *bool { return &c.PerFileSubdir })},
	{key: KeyRecentInputDir, apply: stringField(func(c *Config) *string { return &c.RecentInputDir })},
	{key: KeyRecentOutputDir, apply: stringField(func(c *Config) *string { return &c.RecentOutputDir })},
	{key: KeyParams, apply: func(c *Config, v any) error {
		list, err := decodeParams(v)
		if err != nil {
			return err
		}
		c.Params = list
		return nil
	}},
}

// Keys lists every settings record key the configuration understands.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.key)
	}
	return keys
}

// Apply sets key on c with the conversions used for the settings record.
func Apply(c *Config, key string, value any) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := f.apply(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", f.key, err)
	}
	return nil
}

// lookupField resolves a canonical key or a legacy alias.
func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
		for _, a := range f.aliases {
			if a == key {
				return f, true
			}
		}
	}
	return field{}, false
}

func stringField(ptr func(*Config) *string) func(*Config, any) error {
	return func(c *Config, v any) error {
		s, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		*ptr(c) = strings.TrimSpace(s)
		return nil
	}
}

func nonEmptyStringField(ptr func(*Config) *string) func(*Config, any) error {
	return func(c *Config, v any) error {
		s, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s != "" {
			*ptr(c) = s
		}
		return nil
	}
}

func intField(ptr func(*Config) *int) func(*Config, any) error {
	return func(c *Config, v any) error {
		var (
			n   int
			err error
		)
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				n, err = strconv.Atoi(s)
			}
		} else {
			n, err = cast.ToIntE(v)
		}
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("must not be negative, got %d", n)
		}
		*ptr(c) = n
		return nil
	}
}

func boolField(ptr func(*Config) *bool) func(*Config, any) error {
	return func(c *Config, v any) error {
		switch x := v.(type) {
		case string:
			v = strings.TrimSpace(x)
		case float64:
			v = x != 0
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		*ptr(c) = b
		return nil
	}
}

func decodeParams(v any) (params.List, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case params.List:
		return list.Clone(), nil
	case []params.Entry:
		return params.List(list).Clone(), nil
	}

	var out params.List
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return out, nil
}
