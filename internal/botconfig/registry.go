// Package botconfig holds the per-bot request configuration used by the order builder.
package botconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	exchange "execution-core/pkg/exchanges/common"
)

var (
	ErrBotNotFound = errors.New("bot not registered")
	ErrBotExists   = errors.New("bot already registered")
)

// Defaults applied to fields absent from a decoded configuration.
const (
	DefaultVolume    = 0.01
	DefaultDeviation = 20
	DefaultComment   = "V3N2R4"
)

// BotConfig is the request template of one running bot.
type BotConfig struct {
	BotID      string              `yaml:"id" json:"id" validate:"required"`
	Symbol     string              `yaml:"symbol" json:"symbol" validate:"required"`
	Volume     float64             `yaml:"volume" json:"volume" validate:"gt=0"`
	Deviation  int                 `yaml:"deviation" json:"deviation" validate:"gte=0"`
	Magic      uint64              `yaml:"magic" json:"magic"`
	Comment    string              `yaml:"comment" json:"comment" validate:"max=31"`
	TimePolicy exchange.TimePolicy `yaml:"type_time" json:"type_time" validate:"oneof=GTC DAY SPECIFIED"`
	FillPolicy exchange.FillPolicy `yaml:"type_filling" json:"type_filling" validate:"oneof=FOK IOC RETURN"`
}

// Defaults returns a configuration holding every default. Decoding starts from it, so
// keys present in the input override a default even when they are zero.
func Defaults() BotConfig {
	return BotConfig{
		Volume:     DefaultVolume,
		Deviation:  DefaultDeviation,
		Comment:    DefaultComment,
		TimePolicy: exchange.TimeGTC,
		FillPolicy: exchange.FillReturn,
	}
}

// UnmarshalYAML decodes on top of Defaults.
func (c *BotConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain BotConfig
	p := plain(Defaults())
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = BotConfig(p)
	return nil
}

// UnmarshalJSON decodes on top of Defaults.
func (c *BotConfig) UnmarshalJSON(data []byte) error {
	type plain BotConfig
	p := plain(Defaults())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = BotConfig(p)
	return nil
}

// WithDefaults fills fields whose zero value is never valid. Deviation and comment are
// left alone because zero and empty are legitimate settings.
func (c BotConfig) WithDefaults() BotConfig {
	if c.Volume == 0 {
		c.Volume = DefaultVolume
	}
	if c.TimePolicy == "" {
		c.TimePolicy = exchange.TimeGTC
	}
	if c.FillPolicy == "" {
		c.FillPolicy = exchange.FillReturn
	}
	return c
}

// Registry keeps one configuration per bot identifier.
type Registry struct {
	mu       sync.RWMutex
	bots     map[string]BotConfig
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bots:     make(map[string]BotConfig),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks cfg without storing it.
func (r *Registry) Validate(cfg BotConfig) error {
	if err := r.validate.Struct(cfg); err != nil {
		return fmt.Errorf("bot %q: %w", cfg.BotID, err)
	}
	return nil
}

// Register stores cfg on first registration. A second registration of the same id fails;
// use Reconfigure to replace it.
func (r *Registry) Register(cfg BotConfig) error {
	if err := r.Validate(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bots[cfg.BotID]; ok {
		return fmt.Errorf("%w: %s", ErrBotExists, cfg.BotID)
	}
	r.bots[cfg.BotID] = cfg
	return nil
}

// Reconfigure replaces the configuration of an already registered bot.
func (r *Registry) Reconfigure(cfg BotConfig) error {
	if err := r.Validate(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bots[cfg.BotID]; !ok {
		return fmt.Errorf("%w: %s", ErrBotNotFound, cfg.BotID)
	}
	r.bots[cfg.BotID] = cfg
	return nil
}

// Get returns a copy of the configuration registered under botID.
func (r *Registry) Get(botID string) (BotConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.bots[botID]
	if !ok {
		return BotConfig{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	return cfg, nil
}

// IDs lists registered bot identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.bots))
	for id := range r.bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
