package pcmio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// typeDef locates the loadable module serving an external backend type.
type typeDef struct {
	Comment string `yaml:"comment"`
	Lib     string `yaml:"lib"`
	Open    string `yaml:"open"`
}

// The definition store maps identifiers to backend definitions. It is
// filled from configuration at startup and read during Open; it carries no
// internal synchronization.
var (
	pcmDefs   = map[string]any{}
	typeDefs  = map[string]typeDef{}
	slaveDefs = map[string]any{}
)

func lookupPCMDef(name string) (any, bool) {
	def, ok := pcmDefs[name]

	return def, ok
}

func lookupTypeDef(name string) (typeDef, bool) {
	def, ok := typeDefs[name]

	return def, ok
}

func lookupSlaveDef(name string) (any, bool) {
	def, ok := slaveDefs[name]

	return def, ok
}

// configFile mirrors the on-disk definition layout:
//
//	pcms:
//	  dsp0: "plug:0,0"
//	  dump:
//	    type: file
//	    file: /tmp/dsp0.raw
//	    format: raw
//	    slave:
//	      pcm: "hw:0,0"
//	pcm_types:
//	  jack:
//	    lib: /usr/lib/pcmio/jack.so
//	    open: OpenPCMJack
//	pcm_slaves:
//	  fast:
//	    pcm: "hw:0,0"
//	    rate: 48000
type configFile struct {
	Pcms      map[string]any     `yaml:"pcms"`
	PcmTypes  map[string]typeDef `yaml:"pcm_types"`
	PcmSlaves map[string]any     `yaml:"pcm_slaves"`
}

// LoadConfig merges YAML definitions into the store. Later loads override
// earlier definitions with the same name.
func LoadConfig(data []byte) error {
	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parse config: %v: %w", err, ErrInvalidArg)
	}

	for name, def := range cf.Pcms {
		pcmDefs[name] = def
	}
	for name, def := range cf.PcmTypes {
		typeDefs[name] = def
	}
	for name, def := range cf.PcmSlaves {
		slaveDefs[name] = def
	}

	return nil
}

// LoadConfigFile reads one YAML definition file into the store.
func LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	return LoadConfig(data)
}

// DefinePCM installs or replaces a definition under the given identifier.
// def is either an alias string or a structured definition map.
func DefinePCM(name string, def any) {
	pcmDefs[name] = def
}

// DefineSlave installs or replaces a slave definition under the given
// name, for reference from slave fields.
func DefineSlave(name string, def any) {
	slaveDefs[name] = def
}
