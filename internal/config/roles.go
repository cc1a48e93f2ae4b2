package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TemplateSeed is one global slot template as declared in roles.yml.
type TemplateSeed struct {
	Slot        int      `mapstructure:"slot"`
	Permissions []string `mapstructure:"permissions"`
}

// RolesConfig declares the global slot templates seeded at startup.
type RolesConfig struct {
	Templates []TemplateSeed `mapstructure:"templates"`
}

// DefaultRolesConfig returns the built-in slot templates used when no
// roles.yml is mounted. Slot 1 carries no seed row; it resolves to the
// full catalog regardless of what the store holds.
func DefaultRolesConfig() RolesConfig {
	return RolesConfig{
		Templates: []TemplateSeed{
			{Slot: 2, Permissions: []string{
				"booking:view", "booking:manage", "booking:inviteable",
				"settings:manage", "roles:manage",
				"members:view", "members:manage",
				"directory:listed_internal", "audit:view",
			}},
			{Slot: 3, Permissions: []string{
				"booking:view", "booking:manage", "booking:inviteable",
				"members:view", "directory:listed_internal",
			}},
			{Slot: 4, Permissions: []string{
				"booking:view", "booking:inviteable", "directory:listed_internal",
			}},
			{Slot: 5, Permissions: []string{"booking:view", "directory:listed_public"}},
			{Slot: 6, Permissions: nil},
			{Slot: 7, Permissions: nil},
			{Slot: 8, Permissions: nil},
			{Slot: 9, Permissions: nil},
			{Slot: 10, Permissions: nil},
		},
	}
}

// RolesConfigHolder exposes the current RolesConfig and hot-reloads it
// when the mounted file changes.
type RolesConfigHolder struct {
	current atomic.Value // holds RolesConfig

	mu          sync.Mutex
	subscribers []func(RolesConfig)
}

func NewRolesConfigHolder() (*RolesConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("roles")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/greenroom/config") // Volume-mounted config
	v.AddConfigPath("/etc/greenroom")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("GREENROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultRolesConfig()
		v.SetDefault("roles.templates", defaults.Templates)
	}

	var cfg RolesConfig
	if err := v.UnmarshalKey("roles", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Templates) == 0 {
		cfg = DefaultRolesConfig()
	}
	if err := validateRolesConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RolesConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RolesConfig
		if err := v.UnmarshalKey("roles", &updated); err != nil {
			log.Printf("[roles-config] reload failed: %v", err)
			return
		}
		if err := validateRolesConfig(updated); err != nil {
			log.Printf("[roles-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[roles-config] reloaded from %s", e.Name)
		holder.notify(updated)
	})

	return holder, nil
}

func (h *RolesConfigHolder) Get() RolesConfig {
	return h.current.Load().(RolesConfig)
}

// Subscribe registers a callback invoked after each successful reload.
func (h *RolesConfigHolder) Subscribe(fn func(RolesConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.subscribers = append(h.subscribers, fn)
	h.mu.Unlock()
}

func (h *RolesConfigHolder) notify(cfg RolesConfig) {
	h.mu.Lock()
	subscribers := make([]func(RolesConfig), len(h.subscribers))
	copy(subscribers, h.subscribers)
	h.mu.Unlock()

	for _, fn := range subscribers {
		fn(cfg)
	}
}

func validateRolesConfig(cfg RolesConfig) error {
	if len(cfg.Templates) == 0 {
		return fmt.Errorf("roles.templates cannot be empty")
	}
	seen := make(map[int]struct{}, len(cfg.Templates))
	for _, tpl := range cfg.Templates {
		if tpl.Slot < 1 || tpl.Slot > 10 {
			return fmt.Errorf("roles.templates: slot %d out of range", tpl.Slot)
		}
		if tpl.Slot == 1 {
			return fmt.Errorf("roles.templates: slot 1 is not seedable")
		}
		if _, dup := seen[tpl.Slot]; dup {
			return fmt.Errorf("roles.templates: duplicate slot %d", tpl.Slot)
		}
		seen[tpl.Slot] = struct{}{}
	}
	return nil
}
