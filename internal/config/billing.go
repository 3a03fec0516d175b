package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries tunables that operations may change without a redeploy.
type BillingConfig struct {
	InvoiceDueDays       int      `mapstructure:"invoiceDueDays"`
	DefaultBatchDays     []int    `mapstructure:"defaultBatchDays"`
	SweepOrgBatchSize    int      `mapstructure:"sweepOrgBatchSize"`
	ScholarshipMethods   []string `mapstructure:"scholarshipMethods"`
	RejectionNotifyEmail bool     `mapstructure:"rejectionNotifyEmail"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		InvoiceDueDays:       14,
		DefaultBatchDays:     []int{1},
		SweepOrgBatchSize:    100,
		ScholarshipMethods:   []string{"scholarship"},
		RejectionNotifyEmail: true,
	}
}

// IsScholarshipMethod reports whether a client payment method is billed through batch statements.
func (c BillingConfig) IsScholarshipMethod(method string) bool {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return false
	}
	for _, m := range c.ScholarshipMethods {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfig returns a holder that never reloads. Used by tests and tooling.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/practicebooks/config")
	v.AddConfigPath("/etc/practicebooks")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRACTICEBOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.defaultBatchDays", defaults.DefaultBatchDays)
	v.SetDefault("billing.sweepOrgBatchSize", defaults.SweepOrgBatchSize)
	v.SetDefault("billing.scholarshipMethods", defaults.ScholarshipMethods)
	v.SetDefault("billing.rejectionNotifyEmail", defaults.RejectionNotifyEmail)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := unmarshalBilling(v)
	if err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfig(cfg)
	if !fileLoaded {
		log.Info("billing config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalBilling(v)
		if err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

// unmarshalBilling goes through AllSettings so defaults merge with a partial file.
func unmarshalBilling(v *viper.Viper) (BillingConfig, error) {
	var wrapper struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingConfig{}, err
	}
	return wrapper.Billing, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.InvoiceDueDays < 0 {
		return errors.New("billing.invoiceDueDays cannot be negative")
	}
	for _, day := range cfg.DefaultBatchDays {
		if day < 1 || day > 31 {
			return fmt.Errorf("billing.defaultBatchDays contains invalid day %d", day)
		}
	}
	if cfg.SweepOrgBatchSize <= 0 {
		return errors.New("billing.sweepOrgBatchSize must be positive")
	}
	if len(cfg.ScholarshipMethods) == 0 {
		return errors.New("billing.scholarshipMethods cannot be empty")
	}
	return nil
}
