package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ExcludeRule represents an exclusion rule with optional time bounds
type ExcludeRule struct {
	Pattern string `yaml:"pattern"`
	Before  string `yaml:"before,omitempty"` // Exclude only before this date (YYYY-MM-DD)
	After   string `yaml:"after,omitempty"`  // Exclude only after this date (YYYY-MM-DD)

	// compiled fields
	regex      *regexp.Regexp `yaml:"-"`
	beforeDate time.Time      `yaml:"-"`
	afterDate  time.Time      `yaml:"-"`
}

// Group files transactions matching any of its patterns under one merchant name,
// e.g. "SPOTIFY P1A2B3" and "Spotify AB" both become "Spotify".
type Group struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`

	// compiled patterns
	regexes []*regexp.Regexp `yaml:"-"`
}

// KnownSubscription is one entry of the subscription-provider allowlist.
// Statement imports keep only lines matching an entry (unless disabled), and
// matching transactions are flagged as subscription-like.
type KnownSubscription struct {
	Pattern   string   `yaml:"pattern"`              // Regex pattern to match transaction text
	MinAmount *float64 `yaml:"min_amount,omitempty"` // Optional minimum amount (absolute value)
	MaxAmount *float64 `yaml:"max_amount,omitempty"` // Optional maximum amount (absolute value)
	Before    string   `yaml:"before,omitempty"`     // Only match transactions before this date
	After     string   `yaml:"after,omitempty"`      // Only match transactions after this date

	// compiled fields
	regex      *regexp.Regexp `yaml:"-"`
	beforeDate time.Time      `yaml:"-"`
	afterDate  time.Time      `yaml:"-"`
}

// GuideConfig is a cancellation guide seeded into the store at startup.
type GuideConfig struct {
	Name         string `yaml:"name"`
	Slug         string `yaml:"slug"`
	URL          string `yaml:"url,omitempty"`
	Instructions string `yaml:"instructions,omitempty"` // markdown
}

// DefaultKnownSubscriptions contains patterns for common subscription services.
// These are automatically included unless disabled via use_default_known: false
var DefaultKnownSubscriptions = []KnownSubscription{
	// Video streaming
	{Pattern: "NETFLIX"},
	{Pattern: "DISNEY\\s*(\\+|PLUS)"},
	{Pattern: "HBO\\s*MAX"},
	{Pattern: "AMAZON\\s*PRIME"},
	{Pattern: "PRIME\\s*VIDEO"},
	{Pattern: "APPLE\\s*TV"},
	{Pattern: "PARAMOUNT\\s*(\\+|PLUS)"},
	{Pattern: "PEACOCK"},
	{Pattern: "HULU"},
	{Pattern: "CRUNCHYROLL"},
	{Pattern: "YOUTUBE\\s*(TV|PREMIUM|MUSIC)"},

	// Music and audio
	{Pattern: "SPOTIFY"},
	{Pattern: "APPLE\\s*MUSIC"},
	{Pattern: "PANDORA"},
	{Pattern: "TIDAL"},
	{Pattern: "SIRIUS\\s*XM"},
	{Pattern: "AUDIBLE"},

	// Gaming
	{Pattern: "XBOX\\s*(GAME\\s*PASS|LIVE)"},
	{Pattern: "PLAYSTATION\\s*(PLUS|NOW)"},
	{Pattern: "NINTENDO\\s*(SWITCH\\s*)?ONLINE"},
	{Pattern: "EA\\s*PLAY"},

	// Cloud storage and productivity
	{Pattern: "DROPBOX"},
	{Pattern: "GOOGLE\\s*(ONE|STORAGE|WORKSPACE)"},
	{Pattern: "ICLOUD"},
	{Pattern: "MICROSOFT\\s*365"},
	{Pattern: "OFFICE\\s*365"},
	{Pattern: "ADOBE"},
	{Pattern: "CANVA"},
	{Pattern: "NOTION"},
	{Pattern: "EVERNOTE"},
	{Pattern: "1PASSWORD"},
	{Pattern: "LASTPASS"},

	// Communication
	{Pattern: "ZOOM\\.US"},
	{Pattern: "SLACK"},
	{Pattern: "DISCORD\\s*NITRO"},

	// VPN and security
	{Pattern: "NORDVPN"},
	{Pattern: "EXPRESSVPN"},
	{Pattern: "SURFSHARK"},

	// News and reading
	{Pattern: "NEW\\s*YORK\\s*TIMES|NYTIMES"},
	{Pattern: "WASHINGTON\\s*POST"},
	{Pattern: "WALL\\s*STREET\\s*JOURNAL|WSJ"},
	{Pattern: "MEDIUM\\.COM"},
	{Pattern: "SUBSTACK"},
	{Pattern: "KINDLE\\s*UNLIMITED"},

	// Fitness and wellbeing
	{Pattern: "PELOTON"},
	{Pattern: "STRAVA"},
	{Pattern: "HEADSPACE"},
	{Pattern: "CALM\\.COM"},

	// Developer tools and AI
	{Pattern: "GITHUB"},
	{Pattern: "JETBRAINS"},
	{Pattern: "DIGITALOCEAN"},
	{Pattern: "OPENAI|CHATGPT"},

	// Delivery memberships
	{Pattern: "DOORDASH\\s*DASHPASS"},
	{Pattern: "UBER\\s*ONE"},
	{Pattern: "INSTACART\\+?"},
}

// DefaultGuides are seeded unless disabled via use_default_guides: false
var DefaultGuides = []GuideConfig{
	{
		Name: "Netflix",
		Slug: "netflix",
		URL:  "https://www.netflix.com/cancelplan",
		Instructions: "## Canceling Netflix\n" +
			"1. Log into your account.\n" +
			"2. Go to **Account**.\n" +
			"3. Under *Membership & Billing*, click **Cancel Membership**.\n" +
			"4. Confirm cancellation.",
	},
	{
		Name: "Spotify",
		Slug: "spotify",
		URL:  "https://www.spotify.com/account/subscription/",
		Instructions: "## Canceling Spotify\n" +
			"1. Go to your Spotify account page.\n" +
			"2. Navigate to **Your Plan**.\n" +
			"3. Select **Change Plan**.\n" +
			"4. Scroll to **Spotify Free** and click **Cancel Premium**.",
	},
}

type Config struct {
	// Currency is the default currency for imports that do not name one
	Currency string `yaml:"currency,omitempty"`

	// DateFormat is the default statement date order: US, EU or ISO
	DateFormat string `yaml:"date_format,omitempty"`

	// Descriptions maps merchant names to custom descriptions
	Descriptions map[string]string `yaml:"descriptions,omitempty"`

	// Tags maps merchant names to a list of tags (e.g., "entertainment", "utilities")
	Tags map[string][]string `yaml:"tags,omitempty"`

	// Groups allows combining multiple transaction patterns into one merchant
	Groups []Group `yaml:"groups,omitempty"`

	// UseDefaultKnown controls whether to include built-in known subscription patterns.
	// Defaults to true. Set to false to disable all default patterns.
	UseDefaultKnown *bool `yaml:"use_default_known,omitempty"`

	// Known lists additional subscription providers for the allowlist
	Known []KnownSubscription `yaml:"known,omitempty"`

	// FilterStatementsByKnown drops statement lines that match no known provider.
	// Defaults to true. Structured imports (csv, xlsx, json) are never filtered.
	FilterStatementsByKnown *bool `yaml:"filter_statements_by_known,omitempty"`

	// UseDefaultGuides controls whether the built-in cancellation guides are seeded.
	UseDefaultGuides *bool `yaml:"use_default_guides,omitempty"`

	// Guides lists cancellation guides; a slug here replaces a default guide with the same slug
	Guides []GuideConfig `yaml:"guides,omitempty"`

	// Exclude is a list of exclusion rules (can be strings or objects with time bounds)
	Exclude []yaml.Node `yaml:"exclude,omitempty"`

	// compiled exclusion rules and allowlist (not serialized)
	excludeRules []ExcludeRule       `yaml:"-"`
	known        []KnownSubscription `yaml:"-"`
}

// DefaultConfigPath returns the default config file path (~/.subscription-tracker/config.yaml)
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".subscription-tracker", "config.yaml")
}

// NewDefaultConfig creates a config with only the defaults compiled.
// Use this when no config file exists.
func NewDefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and compiles the config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// LoadConfigOrDefault loads path, falling back to the defaults when the file does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	if path == "" {
		return NewDefaultConfig()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewDefaultConfig()
	}
	return LoadConfig(path)
}

// KnownCount is the size of the compiled allowlist.
func (c *Config) KnownCount() int {
	if c == nil {
		return 0
	}
	return len(c.known)
}

// ParseConfig decodes and compiles YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) compile() error {
	if _, err := ParseDateFormat(c.DateFormat); err != nil {
		return fmt.Errorf("invalid date_format: %w", err)
	}

	// Compile group patterns
	for i := range c.Groups {
		c.Groups[i].regexes = nil
		for _, pattern := range c.Groups[i].Patterns {
			re, err := regexp.Compile("(?i)" + pattern) // case-insensitive
			if err != nil {
				return fmt.Errorf("invalid group pattern %q: %w", pattern, err)
			}
			c.Groups[i].regexes = append(c.Groups[i].regexes, re)
		}
	}

	// Parse exclude rules (supports both strings and objects)
	c.excludeRules = nil
	for _, node := range c.Exclude {
		var rule ExcludeRule

		switch node.Kind {
		case yaml.ScalarNode:
			rule.Pattern = node.Value
		case yaml.MappingNode:
			if err := node.Decode(&rule); err != nil {
				return fmt.Errorf("parsing exclude rule: %w", err)
			}
		default:
			return fmt.Errorf("invalid exclude rule format")
		}

		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", rule.Pattern, err)
		}
		rule.regex = re

		if rule.beforeDate, err = parseBound(rule.Before); err != nil {
			return fmt.Errorf("invalid 'before' date %q: %w", rule.Before, err)
		}
		if rule.afterDate, err = parseBound(rule.After); err != nil {
			return fmt.Errorf("invalid 'after' date %q: %w", rule.After, err)
		}

		c.excludeRules = append(c.excludeRules, rule)
	}

	// Merge default known subscriptions with user-defined ones (defaults come first)
	c.known = nil
	if c.UseDefaultKnown == nil || *c.UseDefaultKnown {
		c.known = append(c.known, DefaultKnownSubscriptions...)
	}
	c.known = append(c.known, c.Known...)

	for i := range c.known {
		k := &c.known[i]
		re, err := regexp.Compile("(?i)" + k.Pattern)
		if err != nil {
			return fmt.Errorf("invalid known subscription pattern %q: %w", k.Pattern, err)
		}
		k.regex = re

		if k.beforeDate, err = parseBound(k.Before); err != nil {
			return fmt.Errorf("invalid 'before' date %q in known subscription: %w", k.Before, err)
		}
		if k.afterDate, err = parseBound(k.After); err != nil {
			return fmt.Errorf("invalid 'after' date %q in known subscription: %w", k.After, err)
		}
	}

	for _, g := range c.Guides {
		if strings.TrimSpace(g.Slug) == "" || strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("guide needs both name and slug: %+v", g)
		}
	}

	return nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// ImportCurrency returns the configured default currency, or "" if none.
func (c *Config) ImportCurrency() string {
	if c == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(c.Currency))
}

// StatementDateFormat returns the configured date order, US if unset.
func (c *Config) StatementDateFormat() DateFormat {
	if c == nil {
		return DateFormatUS
	}
	f, err := ParseDateFormat(c.DateFormat)
	if err != nil {
		return DateFormatUS
	}
	return f
}

// FilterStatements reports whether statement imports keep only known providers.
func (c *Config) FilterStatements() bool {
	return c != nil && (c.FilterStatementsByKnown == nil || *c.FilterStatementsByKnown)
}

// AllGuides returns the guides to seed: defaults first, then configured ones.
// A configured guide replaces a default with the same slug.
func (c *Config) AllGuides() []GuideConfig {
	useDefaults := c == nil || c.UseDefaultGuides == nil || *c.UseDefaultGuides

	var out []GuideConfig
	seen := make(map[string]int)
	add := func(g GuideConfig) {
		key := strings.ToLower(g.Slug)
		if i, ok := seen[key]; ok {
			out[i] = g
			return
		}
		seen[key] = len(out)
		out = append(out, g)
	}

	if useDefaults {
		for _, g := range DefaultGuides {
			add(g)
		}
	}
	if c != nil {
		for _, g := range c.Guides {
			add(g)
		}
	}
	return out
}

// ShouldExclude returns true if the subscription matches any exclude rule
// considering time bounds against the subscription's date range
func (c *Config) ShouldExclude(view SubscriptionView) bool {
	if c == nil {
		return false
	}
	for _, rule := range c.excludeRules {
		if !rule.regex.MatchString(view.Merchant.Name) && !rule.regex.MatchString(view.Merchant.Normalized) {
			continue
		}

		// before: exclude subscriptions last seen before this date
		// after: exclude subscriptions that started after this date
		if !rule.beforeDate.IsZero() && !view.LastSeen.Before(rule.beforeDate) {
			continue
		}
		if !rule.afterDate.IsZero() && view.FirstSeen.Before(rule.afterDate) {
			continue
		}

		return true
	}
	return false
}

// GetDescription returns the custom description for a merchant, or empty string
func (c *Config) GetDescription(name string) string {
	if c == nil || c.Descriptions == nil {
		return ""
	}
	return c.Descriptions[name]
}

// GetTags returns the tags for a merchant, or nil if none
func (c *Config) GetTags(name string) []string {
	if c == nil || c.Tags == nil {
		return nil
	}
	return c.Tags[name]
}

// MatchKnown checks a statement line against the allowlist.
// Returns the matching KnownSubscription or nil if no match.
func (c *Config) MatchKnown(text string, amount decimal.Decimal, date time.Time) *KnownSubscription {
	if c == nil {
		return nil
	}
	for i := range c.known {
		if c.known[i].Matches(text, amount, date) {
			return &c.known[i]
		}
	}
	return nil
}

// Matches returns true if the line matches this known subscription rule
func (k *KnownSubscription) Matches(text string, amount decimal.Decimal, date time.Time) bool {
	if k.regex == nil || !k.regex.MatchString(text) {
		return false
	}

	// Amount bounds use the absolute value since charges may be signed either way
	amt := amount.Abs()
	if k.MinAmount != nil && amt.LessThan(decimal.NewFromFloat(*k.MinAmount)) {
		return false
	}
	if k.MaxAmount != nil && amt.GreaterThan(decimal.NewFromFloat(*k.MaxAmount)) {
		return false
	}

	if !k.beforeDate.IsZero() && !date.Before(k.beforeDate) {
		return false
	}
	if !k.afterDate.IsZero() && date.Before(k.afterDate) {
		return false
	}

	return true
}

// GroupName returns the group name for a transaction text, or "" if no group matches.
func (c *Config) GroupName(text string) string {
	if c == nil {
		return ""
	}
	for _, group := range c.Groups {
		for _, re := range group.regexes {
			if re.MatchString(text) {
				return group.Name
			}
		}
	}
	return ""
}
