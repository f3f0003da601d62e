package chapter

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/sendrec/chaptersync/internal/validate"
)

// Variant selects how a newly active chapter is presented.
type Variant string

const (
	// VariantScroll scrolls a page region into view and briefly emphasizes it.
	VariantScroll Variant = "scroll"
	// VariantFrame swaps an embedded frame to the chapter's resource address.
	VariantFrame Variant = "frame"
)

// ObjectPrefix marks a target or image that lives in object storage.
const ObjectPrefix = "s3:"

//go:embed default.json
var defaultConfig []byte

// Item is a selectable catalog entry shown alongside the video.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Config is the static description of one chaptered page.
type Config struct {
	MediaID  string    `json:"mediaId"`
	Variant  Variant   `json:"variant"`
	Chapters []Chapter `json:"chapters"`
	Regions  []string  `json:"regions,omitempty"`
	Items    []Item    `json:"items,omitempty"`
}

// Load reads a JSON config from path. An empty path yields the built-in default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chapter config: %w", err)
	}
	return Parse(data)
}

func Default() (*Config, error) {
	return Parse(defaultConfig)
}

// Parse decodes and validates a JSON config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode chapter config: %w", err)
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantScroll
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every chapter target resolves for the configured
// variant, in addition to the ordering rules enforced by New.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MediaID) == "" {
		return fmt.Errorf("%w: mediaId is required", ErrInvalid)
	}
	if _, err := New(c.Chapters); err != nil {
		return err
	}

	switch c.Variant {
	case VariantScroll:
		if len(c.Regions) > 0 {
			known := make(map[string]struct{}, len(c.Regions))
			for _, r := range c.Regions {
				known[r] = struct{}{}
			}
			for i, ch := range c.Chapters {
				if _, ok := known[ch.Target]; !ok {
					return fmt.Errorf("%w: chapter %d targets unknown region %q", ErrInvalid, i, ch.Target)
				}
			}
		}
	case VariantFrame:
		for i, ch := range c.Chapters {
			if !IsAddress(ch.Target) {
				return fmt.Errorf("%w: chapter %d target %q is not a resource address", ErrInvalid, i, ch.Target)
			}
		}
	default:
		return fmt.Errorf("%w: unknown variant %q", ErrInvalid, c.Variant)
	}

	seen := make(map[string]struct{}, len(c.Items))
	for i, it := range c.Items {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalid, i)
		}
		if msg := validate.ItemID(it.ID); msg != "" {
			return fmt.Errorf("%w: item %d: %s", ErrInvalid, i, msg)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalid, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// Index builds the chapter index for the config.
func (c *Config) Index() (*Index, error) {
	return New(c.Chapters)
}

// IsAddress reports whether target is an absolute http(s) URL or an object key.
func IsAddress(target string) bool {
	if key, ok := strings.CutPrefix(target, ObjectPrefix); ok {
		return key != ""
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
