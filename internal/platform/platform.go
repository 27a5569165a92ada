package platform

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"earthgazer/internal/services"
	"earthgazer/internal/store"
)

//go:embed platforms.yaml
var builtinDefinitions []byte

// CatalogFields enumerates the capture attributes every catalog mapping must
// project, in result column order.
var CatalogFields = []string{
	"main_id",
	"secondary_id",
	"mission_id",
	"sensing_time",
	"cloud_cover",
	"north_lat",
	"south_lat",
	"west_lon",
	"east_lon",
	"base_url",
	"mgrs_tile",
	"wrs_path",
	"wrs_row",
	"data_type",
}

// Catalog describes how a platform's scenes are found in the public index.
type Catalog struct {
	Table   string            `yaml:"table"`
	Fields  map[string]string `yaml:"fields"`
	Filters []string          `yaml:"filters"`
}

// Definition is the declarative description of one satellite platform.
type Definition struct {
	Name        string              `yaml:"name"`
	Missions    []string            `yaml:"missions"`
	Catalog     Catalog             `yaml:"catalog"`
	Bands       []string            `yaml:"bands"`
	FilePattern string              `yaml:"file_pattern"`
	Exclude     []string            `yaml:"exclude"`
	Measure     string              `yaml:"radiometric_measure"`
	Level       string              `yaml:"atmospheric_reference_level"`
	Composites  map[string][]string `yaml:"composites"`
}

type definitionFile struct {
	Platforms []Definition `yaml:"platforms"`
}

// Platform is a compiled definition ready for use by the pipeline stages.
type Platform struct {
	Definition
	grammar *Grammar
	measure *Expression
	level   *Expression
}

// Grammar returns the band filename grammar.
func (p *Platform) Grammar() *Grammar {
	return p.grammar
}

// HasMission reports whether missionID belongs to this platform.
func (p *Platform) HasMission(missionID string) bool {
	for _, mission := range p.Missions {
		if strings.EqualFold(mission, missionID) {
			return true
		}
	}
	return false
}

// HasBand reports whether band is tracked for this platform.
func (p *Platform) HasBand(band string) bool {
	for _, candidate := range p.Bands {
		if candidate == band {
			return true
		}
	}
	return false
}

// Radiometry evaluates the per-capture radiometric measure and atmospheric
// reference level.
func (p *Platform) Radiometry(capture *store.Capture) (store.RadiometricMeasure, store.AtmosphericLevel, error) {
	measure, err := p.measure.Eval(capture)
	if err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "platform", "radiometric measure", p.Name, err)
	}
	level, err := p.level.Eval(capture)
	if err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "platform", "atmospheric level", p.Name, err)
	}
	switch store.RadiometricMeasure(measure) {
	case "", store.MeasureRadiance, store.MeasureReflectance, store.MeasureDN:
	default:
		return "", "", services.Wrap(services.ErrConfiguration, "platform", "radiometric measure", fmt.Sprintf("%s produced unknown measure %q", p.Name, measure), nil)
	}
	switch store.AtmosphericLevel(level) {
	case "", store.LevelTOA, store.LevelBOA:
	default:
		return "", "", services.Wrap(services.ErrConfiguration, "platform", "atmospheric level", fmt.Sprintf("%s produced unknown level %q", p.Name, level), nil)
	}
	return store.RadiometricMeasure(measure), store.AtmosphericLevel(level), nil
}

// Composite returns the ordered band list for a named composite.
func (p *Platform) Composite(name string) ([]string, bool) {
	bands, ok := p.Composites[strings.ToLower(name)]
	return bands, ok
}

// CompositeNames lists the composites defined for the platform, sorted.
func (p *Platform) CompositeNames() []string {
	names := make([]string, 0, len(p.Composites))
	for name := range p.Composites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compile(def Definition) (*Platform, error) {
	def.Name = strings.ToUpper(strings.TrimSpace(def.Name))
	if def.Name == "" {
		return nil, fmt.Errorf("platform name is required")
	}
	if len(def.Missions) == 0 {
		return nil, fmt.Errorf("platform %s: at least one mission is required", def.Name)
	}
	if strings.TrimSpace(def.Catalog.Table) == "" {
		return nil, fmt.Errorf("platform %s: catalog table is required", def.Name)
	}
	for _, field := range CatalogFields {
		if strings.TrimSpace(def.Catalog.Fields[field]) == "" {
			return nil, fmt.Errorf("platform %s: catalog field %s is not mapped", def.Name, field)
		}
	}
	grammar, err := NewGrammar(def.FilePattern, def.Bands, def.Exclude)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", def.Name, err)
	}
	measure, err := compileExpression("radiometric_measure", def.Measure)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", def.Name, err)
	}
	level, err := compileExpression("atmospheric_reference_level", def.Level)
	if err != nil {
		return nil, fmt.Errorf("platform %s: %w", def.Name, err)
	}
	composites := make(map[string][]string, len(def.Composites))
	for name, bands := range def.Composites {
		if len(bands) != 1 && len(bands) != 3 {
			return nil, fmt.Errorf("platform %s: composite %s must list 1 or 3 bands", def.Name, name)
		}
		for _, band := range bands {
			found := false
			for _, tracked := range def.Bands {
				if tracked == band {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("platform %s: composite %s uses untracked band %s", def.Name, name, band)
			}
		}
		composites[strings.ToLower(name)] = bands
	}
	def.Composites = composites
	return &Platform{Definition: def, grammar: grammar, measure: measure, level: level}, nil
}

// Registry holds the compiled platforms known to the process.
type Registry struct {
	platforms map[string]*Platform
	order     []string
}

// Builtin returns a registry containing the embedded platform definitions.
func Builtin() (*Registry, error) {
	return Load("")
}

// Load returns the builtin registry with definitions from path layered on top.
// A definition in the file replaces the builtin of the same name.
func Load(path string) (*Registry, error) {
	reg := &Registry{platforms: make(map[string]*Platform)}
	if err := reg.merge(builtinDefinitions); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platform", "load builtin", "embedded definitions are invalid", err)
	}
	if strings.TrimSpace(path) == "" {
		return reg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platform", "read definitions", path, err)
	}
	if err := reg.merge(data); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "platform", "load definitions", path, err)
	}
	return reg, nil
}

func (r *Registry) merge(data []byte) error {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode definitions: %w", err)
	}
	for _, def := range file.Platforms {
		compiled, err := compile(def)
		if err != nil {
			return err
		}
		if _, exists := r.platforms[compiled.Name]; !exists {
			r.order = append(r.order, compiled.Name)
		}
		r.platforms[compiled.Name] = compiled
	}
	return nil
}

// Get looks up a platform by name, case-insensitively.
func (r *Registry) Get(name string) (*Platform, bool) {
	p, ok := r.platforms[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// Names returns platform names in definition order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select resolves the requested names, preserving their order. An empty
// request selects every platform.
func (r *Registry) Select(names []string) ([]*Platform, error) {
	if len(names) == 0 {
		names = r.order
	}
	selected := make([]*Platform, 0, len(names))
	for _, name := range names {
		p, ok := r.Get(name)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "platform", "select", fmt.Sprintf("unknown platform %q", name), nil)
		}
		selected = append(selected, p)
	}
	return selected, nil
}
