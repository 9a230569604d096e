// Package catalog holds the pest species reference data: descriptions,
// danger levels and treatment guidance keyed by classifier label.
package catalog

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"github.com/palayguard/palayguard-go/internal/errors"
	"github.com/palayguard/palayguard-go/internal/logging"
)

//go:embed species.yaml
var speciesFiles embed.FS

// Package-level logger following the service logger pattern.
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	serviceLevelVar.Set(slog.LevelInfo)

	var err error
	logger, closeLogger, err = logging.NewFileLogger("logs/catalog.log", "catalog", serviceLevelVar)
	if err != nil || logger == nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "catalog")
		closeLogger = func() error { return nil }
	}
}

// Species is one catalog entry for a pest the classifier can report.
type Species struct {
	Label          string `yaml:"label"`
	ScientificName string `yaml:"scientific_name"`
	Description    string `yaml:"description"`
	Symptoms       string `yaml:"symptoms"`
	Treatment      string `yaml:"treatment"`
	DangerLevel    string `yaml:"danger_level"`
}

// Danger levels in ascending severity.
const (
	DangerLow      = "low"
	DangerMedium   = "medium"
	DangerHigh     = "high"
	DangerCritical = "critical"
)

var dangerRank = map[string]int{
	DangerLow:      0,
	DangerMedium:   1,
	DangerHigh:     2,
	DangerCritical: 3,
}

// RankDangerLevel returns the severity rank of a danger level, -1 for
// unknown levels.
func RankDangerLevel(level string) int {
	rank, ok := dangerRank[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return -1
	}
	return rank
}

const (
	lookupCacheTTL     = 1 * time.Hour
	lookupCacheCleanup = 15 * time.Minute
)

// Catalog resolves classifier labels to species entries. Matching is
// case- and whitespace-insensitive; resolved lookups are cached because
// callers hit the catalog once per scan iteration.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Species
	lookups *cache.Cache
}

// New builds a catalog from the embedded species data.
func New() (*Catalog, error) {
	data, err := fs.ReadFile(speciesFiles, "species.yaml")
	if err != nil {
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryCatalog).
			Build()
	}

	c := &Catalog{
		lookups: cache.New(lookupCacheTTL, lookupCacheCleanup),
	}
	if err := c.load(data); err != nil {
		return nil, err
	}
	return c, nil
}

// NewWithOverride builds a catalog from the embedded data and merges
// entries from an operator-provided YAML file on top. Entries with the
// same label replace the embedded ones.
func NewWithOverride(path string) (*Catalog, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	if err := c.MergeFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load(data []byte) error {
	var entries []Species
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return errors.New(err).
			Component("catalog").
			Category(errors.CategoryCatalog).
			Context("operation", "parse-species-data").
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*Species, len(entries))
	}
	for i := range entries {
		sp := entries[i]
		if sp.Label == "" {
			return errors.Newf("species entry %d has no label", i).
				Component("catalog").
				Category(errors.CategoryValidation).
				Build()
		}
		c.entries[normalizeLabel(sp.Label)] = &sp
	}
	return nil
}

// MergeFile layers entries from a YAML file over the current catalog and
// flushes the lookup cache.
func (c *Catalog) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(err).
			Component("catalog").
			Category(errors.CategoryFileIO).
			FileContext(path, -1).
			Build()
	}
	if err := c.load(data); err != nil {
		return err
	}
	c.lookups.Flush()
	logger.Info("merged species override file", "path", path, "entries", c.Len())
	return nil
}

// Lookup resolves a classifier label to its species entry, or nil when the
// catalog has no match.
func (c *Catalog) Lookup(label string) *Species {
	key := normalizeLabel(label)
	if key == "" {
		return nil
	}

	if hit, ok := c.lookups.Get(key); ok {
		if hit == nil {
			return nil
		}
		return hit.(*Species)
	}

	c.mu.RLock()
	sp := c.entries[key]
	if sp == nil {
		// Tolerate singular/plural drift between model labels and
		// catalog entries ("Grasshopper" vs "Grasshoppers").
		if alt, ok := c.entries[key+"s"]; ok {
			sp = alt
		} else if alt, ok := c.entries[strings.TrimSuffix(key, "s")]; ok {
			sp = alt
		}
	}
	c.mu.RUnlock()

	if sp == nil {
		c.lookups.Set(key, nil, cache.DefaultExpiration)
		return nil
	}
	c.lookups.Set(key, sp, cache.DefaultExpiration)
	return sp
}

// All returns every species entry, in unspecified order.
func (c *Catalog) All() []*Species {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Species, 0, len(c.entries))
	for _, sp := range c.entries {
		out = append(out, sp)
	}
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases the catalog's file logger.
func (c *Catalog) Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// TreatmentSteps splits a species' treatment text into discrete steps on
// sentence boundaries. Empty fragments are dropped and each step keeps
// its terminating period.
func TreatmentSteps(sp *Species) []string {
	if sp == nil || strings.TrimSpace(sp.Treatment) == "" {
		return nil
	}

	var steps []string
	for _, fragment := range strings.Split(sp.Treatment, ".") {
		step := strings.TrimSpace(fragment)
		if step == "" {
			continue
		}
		steps = append(steps, step+".")
	}
	return steps
}

// String implements fmt.Stringer for log output.
func (s *Species) String() string {
	return fmt.Sprintf("%s (%s, danger %s)", s.Label, s.ScientificName, s.DangerLevel)
}
