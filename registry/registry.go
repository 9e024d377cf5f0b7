// Package registry parses the declarative system catalog into an in-memory,
// read-only map of SystemKey to metadata and variant configuration. The
// registry is parsed once at startup and is immutable thereafter; it is
// shared read-only by every other component.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccessClass identifies whether a system's weights/code are open or
// proprietary.
type AccessClass string

const (
	AccessOpen         AccessClass = "OPEN"
	AccessProprietary  AccessClass = "PROPRIETARY"
)

// SystemKey identifies a (system, variant) pair. Both parts must match
// [a-z0-9-]+.
type SystemKey struct {
	SystemTag  string
	VariantTag string
}

// String returns the "system_tag:variant_tag" wire form.
func (k SystemKey) String() string {
	return k.SystemTag + ":" + k.VariantTag
}

// ParseSystemKey parses the "system_tag:variant_tag" wire form.
func ParseSystemKey(s string) (SystemKey, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SystemKey{}, fmt.Errorf("registry: invalid system key %q", s)
	}
	return SystemKey{SystemTag: parts[0], VariantTag: parts[1]}, nil
}

// Less reports whether k sorts before other: lexicographic on system_tag
// then variant_tag, matching the registry's deterministic ordering.
func (k SystemKey) Less(other SystemKey) bool {
	if k.SystemTag != other.SystemTag {
		return k.SystemTag < other.SystemTag
	}
	return k.VariantTag < other.VariantTag
}

// TrainingData describes the provenance of a system's training corpus.
type TrainingData struct {
	Type      string   `yaml:"type"`
	Sources   []string `yaml:"sources"`
	NumTracks int      `yaml:"num_tracks,omitempty"`
	NumHours  float64  `yaml:"num_hours,omitempty"`
}

// Links holds optional reference URLs for a system.
type Links struct {
	Home string `yaml:"home,omitempty"`
	Paper string `yaml:"paper,omitempty"`
	Code string `yaml:"code,omitempty"`
}

// SystemMetadata is immutable per SystemKey, derived from the catalog.
type SystemMetadata struct {
	Key                   SystemKey
	DisplayName           string
	Description           string
	Organization          string
	Access                AccessClass
	ModelType             string
	TrainingData          TrainingData
	Citation              string
	Links                 Links
	SupportsLyrics        bool
	RequiresGPU           bool
	ReleaseAudioPublicly  bool
	Enabled               bool
}

// Redacted returns a copy of m with the system identity replaced by
// "anonymized", for use in pre-vote battle responses.
func (m SystemMetadata) Redacted() SystemMetadata {
	r := m
	r.Key = SystemKey{SystemTag: "anonymized", VariantTag: "anonymized"}
	r.DisplayName = "anonymized"
	r.Organization = "anonymized"
	return r
}

// VariantSpec carries the deployment-layer configuration for a variant. The
// module/class identifiers are opaque to the core; the registry only
// validates that declared secrets are resolvable.
type VariantSpec struct {
	ModuleName  string
	ClassName   string
	Description string
	Secrets     []string
	InitKwargs  map[string]any
	BaseURL     string
}

// entry bundles a SystemMetadata with its VariantSpec for internal storage.
type entry struct {
	Metadata SystemMetadata
	Variant  VariantSpec
}

// Registry is the parsed, immutable system catalog.
type Registry struct {
	entries map[SystemKey]entry
	keys    []SystemKey
}

// catalogFile mirrors the registry YAML's on-disk shape (see file format
// documentation): a map of system_tag to its declaration.
type catalogFile map[string]catalogSystem

type catalogSystem struct {
	DisplayName          string                    `yaml:"display_name"`
	Description          string                    `yaml:"description"`
	Organization         string                    `yaml:"organization"`
	Access               string                    `yaml:"access"`
	SupportsLyrics       bool                      `yaml:"supports_lyrics"`
	RequiresGPU          bool                      `yaml:"requires_gpu"`
	ModelType            string                    `yaml:"model_type"`
	TrainingData         TrainingData              `yaml:"training_data"`
	Citation             string                    `yaml:"citation"`
	Links                Links                     `yaml:"links"`
	ReleaseAudioPublicly bool                      `yaml:"release_audio_publicly"`
	Variants             map[string]catalogVariant `yaml:"variants"`
}

type catalogVariant struct {
	ModuleName  string         `yaml:"module_name"`
	ClassName   string         `yaml:"class_name"`
	Description string         `yaml:"description,omitempty"`
	Secrets     []string       `yaml:"secrets,omitempty"`
	InitKwargs  map[string]any `yaml:"init_kwargs,omitempty"`
	BaseURL     string         `yaml:"base_url,omitempty"`
}

// SecretResolver reports whether a named secret can be resolved at launch.
// Production wiring typically backs this with an environment lookup or a
// secret manager client; the core only needs the boolean contract.
type SecretResolver func(name string) bool

// Load parses the catalog file at path into a Registry. resolveSecret is
// consulted for every secret a variant declares; if it returns false for
// any secret, Load fails with a configuration error, matching the registry's
// startup validation contract.
func Load(path string, resolveSecret SecretResolver) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read catalog %s: %w", path, err)
	}
	return Parse(data, resolveSecret)
}

// Parse parses raw catalog YAML bytes into a Registry.
func Parse(data []byte, resolveSecret SecretResolver) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("registry: failed to parse catalog: %w", err)
	}
	if resolveSecret == nil {
		resolveSecret = func(string) bool { return true }
	}

	r := &Registry{entries: make(map[SystemKey]entry)}
	seenPorts := make(map[uint16]SystemKey)

	systemTags := make([]string, 0, len(file))
	for tag := range file {
		systemTags = append(systemTags, tag)
	}
	sort.Strings(systemTags)

	for _, systemTag := range systemTags {
		sys := file[systemTag]
		access := AccessClass(sys.Access)
		if access != AccessOpen && access != AccessProprietary {
			return nil, fmt.Errorf("registry: system %q has invalid access class %q", systemTag, sys.Access)
		}

		variantTags := make([]string, 0, len(sys.Variants))
		for tag := range sys.Variants {
			variantTags = append(variantTags, tag)
		}
		sort.Strings(variantTags)

		for _, variantTag := range variantTags {
			variant := sys.Variants[variantTag]
			key := SystemKey{SystemTag: systemTag, VariantTag: variantTag}
			if err := validateKeyPart(systemTag); err != nil {
				return nil, fmt.Errorf("registry: %w", err)
			}
			if err := validateKeyPart(variantTag); err != nil {
				return nil, fmt.Errorf("registry: %w", err)
			}

			for _, secret := range variant.Secrets {
				if !resolveSecret(secret) {
					return nil, fmt.Errorf("registry: variant %s declares unresolvable secret %q", key, secret)
				}
			}

			port := PortFor(key)
			if existing, collided := seenPorts[port]; collided {
				return nil, fmt.Errorf("registry: port collision between %s and %s", existing, key)
			}
			seenPorts[port] = key

			r.entries[key] = entry{
				Metadata: SystemMetadata{
					Key:                  key,
					DisplayName:          sys.DisplayName,
					Description:          sys.Description,
					Organization:         sys.Organization,
					Access:               access,
					ModelType:            sys.ModelType,
					TrainingData:         sys.TrainingData,
					Citation:             sys.Citation,
					Links:                sys.Links,
					SupportsLyrics:       sys.SupportsLyrics,
					RequiresGPU:          sys.RequiresGPU,
					ReleaseAudioPublicly: sys.ReleaseAudioPublicly,
					Enabled:              true,
				},
				Variant: VariantSpec{
					ModuleName:  variant.ModuleName,
					ClassName:   variant.ClassName,
					Description: variant.Description,
					Secrets:     variant.Secrets,
					InitKwargs:  variant.InitKwargs,
					BaseURL:     variant.BaseURL,
				},
			}
			r.keys = append(r.keys, key)
		}
	}

	sort.Slice(r.keys, func(i, j int) bool { return r.keys[i].Less(r.keys[j]) })
	return r, nil
}

func validateKeyPart(s string) error {
	if s == "" {
		return fmt.Errorf("empty key component")
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return fmt.Errorf("key component %q must match [a-z0-9-]+", s)
		}
	}
	return nil
}

// Lookup returns the metadata for key, or ok=false if it is not in the catalog.
func (r *Registry) Lookup(key SystemKey) (SystemMetadata, bool) {
	e, ok := r.entries[key]
	return e.Metadata, ok
}

// Variant returns the deployment-layer spec for key.
func (r *Registry) Variant(key SystemKey) (VariantSpec, bool) {
	e, ok := r.entries[key]
	return e.Variant, ok
}

// All returns every SystemKey in deterministic (lexicographic) order.
func (r *Registry) All() []SystemKey {
	out := make([]SystemKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// PortFor deterministically maps a SystemKey to a 16-bit port used by the
// deployment layer. The gateway never assumes this value; it always reads
// addresses from configuration.
func PortFor(key SystemKey) uint16 {
	h := fnv32(key.String())
	// Reserve the well-known port range; offset into the ephemeral/ registered range.
	return uint16(20000 + (h % 20000))
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	hash := uint32(offset32)
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= prime32
	}
	return hash
}
