// Package setupconfig resolves the configuration a provisioning run works
// from. Values are layered from built-in defaults, hints read from the device,
// a saved configuration file and command-line overrides, in that order of
// increasing precedence.
package setupconfig

import "encoding/json"

// WiFi holds the network the device joins on first boot.
type WiFi struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Config is the resolved configuration of a run. Fields up to IsLocalVersion
// are produced by the resolver; the remaining ones are filled by later
// pipeline stages.
//
// Empty strings and zero product IDs count as unset: they are left out of the
// config blob. Booleans are always written, except silent and loadedFromFile
// which only appear for runs loaded from a file.
type Config struct {
	Region           string `json:"region,omitempty"`
	Version          string `json:"version,omitempty"`
	Board            string `json:"board,omitempty"`
	Variant          string `json:"variant,omitempty"`
	Country          string `json:"country,omitempty"`
	SystemPassword   string `json:"systemPassword,omitempty"`
	WiFi             *WiFi  `json:"wifi,omitempty"`
	ProductID        int    `json:"productId,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	SkipFlashingOS   bool   `json:"skipFlashingOs"`
	SkipCLI          bool   `json:"skipCli"`
	AlwaysCleanCache bool   `json:"alwaysCleanCache"`
	Silent           bool   `json:"silent,omitempty"`
	LoadedFromFile   bool   `json:"loadedFromFile,omitempty"`
	IsLocalVersion   bool   `json:"isLocalVersion"`
	LoadConfig       string `json:"loadConfig,omitempty"`
	SaveConfig       string `json:"saveConfig,omitempty"`

	APIServer        string          `json:"apiServer,omitempty"`
	Server           string          `json:"server,omitempty"`
	Verbose          bool            `json:"verbose,omitempty"`
	PackagePath      string          `json:"packagePath,omitempty"`
	RegistrationCode string          `json:"registrationCode,omitempty"`
	ESIM             json.RawMessage `json:"esim,omitempty"`
}

// BoardKind returns the board family of the configured board.
func (c *Config) BoardKind() BoardKind {
	return KindOfBoard(c.Board)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.WiFi != nil {
		w := *c.WiFi
		out.WiFi = &w
	}
	if c.ESIM != nil {
		out.ESIM = append(json.RawMessage(nil), c.ESIM...)
	}
	return &out
}

// Overrides are the command-line options. A nil field was not given on the
// command line and never replaces a lower-precedence value.
type Overrides struct {
	SkipFlashingOS *bool
	Timezone       *string
	LoadConfig     *string
	SaveConfig     *string
	Region         *string
	Version        *string
	Variant        *string
	Board          *string
	SkipCLI        *bool
}

// Values returns the defined overrides keyed by configuration field name.
func (o Overrides) Values() Values {
	v := Values{}
	setString := func(key string, s *string) {
		if s != nil {
			v[key] = *s
		}
	}
	setBool := func(key string, b *bool) {
		if b != nil {
			v[key] = *b
		}
	}
	setBool("skipFlashingOs", o.SkipFlashingOS)
	setString("timezone", o.Timezone)
	setString("loadConfig", o.LoadConfig)
	setString("saveConfig", o.SaveConfig)
	setString("region", o.Region)
	setString("version", o.Version)
	setString("variant", o.Variant)
	setString("board", o.Board)
	setBool("skipCli", o.SkipCLI)
	return v
}

// Values is one configuration layer keyed by JSON field name.
type Values map[string]any

// Defaults returns the built-in lowest-precedence layer.
func Defaults(timezone string) Values {
	return Values{
		"region":           "NA",
		"version":          "stable",
		"board":            "formfactor",
		"country":          "USA",
		"skipFlashingOs":   false,
		"skipCli":          false,
		"timezone":         timezone,
		"alwaysCleanCache": false,
	}
}
