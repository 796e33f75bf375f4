// Package services – Catalog
//
// The catalog is the read-only list of bookable packages. It is persisted in
// the services table, seeded at start from a YAML file or the built-in
// defaults, and cached in memory for lookups. Lookups tolerate case,
// spacing and unambiguous partial names, and fail with the list of valid
// names otherwise.
package services

import (
	"context"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/domain"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// DefaultServices seeds an empty catalog.
var DefaultServices = []domain.Service{
	{Name: "Gold", DurationText: "30 mins", Price: 2500, Deposit: 500},
	{Name: "Silver", DurationText: "1 hr", Price: 1800, Deposit: 400},
	{Name: "Platinum", DurationText: "1 hr 30 mins", Price: 4000, Deposit: 1000},
	{Name: "Bridal Package", DurationText: "3 hrs", Price: 12000, Deposit: 3000},
}

// Catalog caches the services table.
type Catalog struct {
	DB              *gorm.DB
	DefaultDuration time.Duration

	fold  cases.Caser
	mu    sync.RWMutex
	items []domain.Service
}

// NewCatalog returns an empty Catalog; call Seed or Load before use.
func NewCatalog(db *gorm.DB, defaultDuration time.Duration) *Catalog {
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	return &Catalog{DB: db, DefaultDuration: defaultDuration, fold: cases.Fold()}
}

type catalogFile struct {
	Services []struct {
		Name     string `yaml:"name"`
		Duration string `yaml:"duration"`
		Price    int64  `yaml:"price"`
		Deposit  int64  `yaml:"deposit"`
	} `yaml:"services"`
}

// ReadCatalogFile parses a YAML catalog.
func ReadCatalogFile(path string) ([]domain.Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}
	out := make([]domain.Service, 0, len(f.Services))
	for i, s := range f.Services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, errors.Newf("catalog entry %d: name is required", i)
		}
		if s.Deposit < 0 || s.Price < 0 || s.Deposit > s.Price {
			return nil, errors.Newf("catalog entry %q: deposit must be between 0 and price", name)
		}
		out = append(out, domain.Service{Name: name, DurationText: s.Duration, Price: s.Price, Deposit: s.Deposit})
	}
	return out, nil
}

// Seed upserts items (DefaultServices when empty) and reloads the cache.
func (c *Catalog) Seed(ctx context.Context, items []domain.Service) error {
	if len(items) == 0 {
		items = DefaultServices
	}
	rows := make([]domain.Service, 0, len(items))
	for _, s := range items {
		mins, err := ParseDurationMinutes(s.DurationText)
		if err != nil {
			mins = int(c.DefaultDuration / time.Minute)
		}
		s.ID = uuid.NewString()
		s.DurationMin = mins
		rows = append(rows, s)
	}
	if err := repo.UpsertServices(ctx, c.DB, rows); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	return c.Load(ctx)
}

// Load refreshes the cache from the database.
func (c *Catalog) Load(ctx context.Context) error {
	items, err := repo.ListServices(ctx, c.DB)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Services returns a copy of the cached catalog.
func (c *Catalog) Services() []domain.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Service(nil), c.items...)
}

// Names returns the valid service names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.items))
	for _, s := range c.items {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves name to a service. An exact match after case folding and
// whitespace collapsing wins; otherwise a single service whose name contains,
// or is contained in, the query is accepted.
func (c *Catalog) Lookup(name string) (domain.Service, error) {
	q := c.key(name)
	if q == "" {
		return domain.Service{}, invalid(domain.FieldService, "choose one of: %s", strings.Join(c.Names(), ", "))
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var partial []domain.Service
	for _, s := range c.items {
		k := c.key(s.Name)
		if k == q {
			return s, nil
		}
		if strings.Contains(k, q) || strings.Contains(q, k) {
			partial = append(partial, s)
		}
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	names := make([]string, 0, len(c.items))
	for _, s := range c.items {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return domain.Service{}, invalid(domain.FieldService, "%q is not a service we offer; choose one of: %s", strings.TrimSpace(name), strings.Join(names, ", "))
}

// Duration returns the service's length, or DefaultDuration for unknown
// names.
func (c *Catalog) Duration(name string) time.Duration {
	s, err := c.Lookup(name)
	if err != nil || s.DurationMin <= 0 {
		return c.DefaultDuration
	}
	return time.Duration(s.DurationMin) * time.Minute
}

func (c *Catalog) key(s string) string {
	return c.fold.String(whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " "))
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	durationRE   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
)

// ParseDurationMinutes converts text such as "1 hr 30 mins", "90 minutes"
// or "2h" into minutes.
func ParseDurationMinutes(text string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, errors.New("duration is empty")
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n, nil
	}
	total := 0.0
	matches := durationRE.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		v, _ := strconv.ParseFloat(m[1], 64)
		if strings.HasPrefix(m[2], "h") {
			total += v * 60
		} else {
			total += v
		}
	}
	if len(matches) == 0 || total <= 0 {
		return 0, errors.Newf("unrecognized duration %q", text)
	}
	return int(total + 0.5), nil
}
