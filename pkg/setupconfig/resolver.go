package setupconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
	"github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RequiredFields must all be set when a run is driven by a configuration file.
var RequiredFields = []string{"region", "version", "systemPassword", "productId", "timezone"}

// Resolver merges configuration layers into one Config.
type Resolver struct {
	profile Profile
}

// NewResolver creates a resolver for a behaviour profile.
func NewResolver(profile Profile) *Resolver {
	return &Resolver{profile: profile}
}

// Resolve merges defaults < device hints < file < overrides and validates the
// result. file is nil when no configuration file was loaded; a loaded file
// makes the run silent, which requires every RequiredFields entry and, unless
// the version is a local path, a board and a variant.
//
// Only the behaviour profile decides whether device hints take part.
func (r *Resolver) Resolve(defaults, hints, file Values, overrides Overrides) (*Config, error) {
	if !r.profile.DetectFromDevice {
		hints = nil
	}

	k := koanf.New(".")
	layers := []struct {
		name   string
		values Values
	}{
		{"defaults", defaults},
		{"device", hints},
		{"file", file},
		{"overrides", overrides.Values()},
	}
	for _, layer := range layers {
		if len(layer.values) == 0 {
			continue
		}
		if err := k.Load(confmap.Provider(map[string]any(layer.values), "."), nil); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to merge %s configuration", layer.name))
		}
		slog.Debug("config_layer_merged", "layer", layer.name, "keys", len(layer.values))
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json", DecoderConfig: decoderConfig()}); err != nil {
		return nil, errors.WithKind(err, errors.KindConfigValidation,
			fmt.Sprintf("The configuration is not valid: %v", err))
	}

	if cfg.Silent {
		if missing := MissingFields(&cfg); len(missing) > 0 {
			return nil, errors.Newf(errors.KindConfigValidation,
				"The configuration file is missing required fields: %s", strings.Join(missing, ", "))
		}
	}

	kind, err := ClassifyVersion(cfg.Version)
	if err != nil {
		return nil, err
	}
	cfg.IsLocalVersion = kind == VersionLocal

	if !cfg.IsLocalVersion && cfg.Silent && (cfg.Board == "" || cfg.Variant == "") {
		return nil, errors.New(errors.KindConfigValidation, "Board and variant are required for silent mode")
	}

	slog.Info("config_resolved",
		"region", cfg.Region,
		"version", cfg.Version,
		"version_kind", kind.String(),
		"board", cfg.Board,
		"variant", cfg.Variant,
		"silent", cfg.Silent)

	return &cfg, nil
}

func decoderConfig() *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			rawMessageHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc()),
		WeaklyTypedInput: true,
	}
}

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// rawMessageHook keeps opaque values such as esim as JSON.
func rawMessageHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != rawMessageType {
		return data, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// MissingFields lists the RequiredFields that cfg leaves unset, in order.
func MissingFields(cfg *Config) []string {
	set := map[string]bool{
		"region":         cfg.Region != "",
		"version":        cfg.Version != "",
		"systemPassword": cfg.SystemPassword != "",
		"productId":      cfg.ProductID != 0,
		"timezone":       cfg.Timezone != "",
	}
	var missing []string
	for _, field := range RequiredFields {
		if !set[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

// LoadFile reads a saved configuration file. Any board it carries is dropped:
// the board always comes from the device or the command line. The returned
// layer marks the run as silent.
func LoadFile(path string) (Values, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, errors.WithKind(err, errors.KindConfigValidation,
			fmt.Sprintf("The configuration file is not a valid JSON file: %v", err))
	}
	k.Delete("board")

	values := Values(k.Raw())
	values["silent"] = true
	values["loadedFromFile"] = true

	slog.Info("config_file_loaded", "path", path, "keys", len(values))
	return values, nil
}

// HintsFromDevice derives region and board from what the device reports about
// itself. An unknown region falls back to NA; boards still running Ubuntu 20.04
// are DVT units.
func HintsFromDevice(region, osVersion string) Values {
	hints := Values{"region": "NA", "board": "formfactor"}
	if region != "" && !strings.EqualFold(region, "unknown") {
		hints["region"] = region
	}
	if osVersion == "Ubuntu 20.04" {
		hints["board"] = "formfactor_dvt"
	}
	return hints
}
