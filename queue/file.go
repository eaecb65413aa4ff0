package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings like "30s" or "2m" via time.ParseDuration.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// QueueSpec is one queue definition in a provisioning file.
type QueueSpec struct {
	Name            string   `toml:"name"`
	MaxReceiveCount int      `toml:"max_receive_count"`
	LeaseDuration   Duration `toml:"lease_duration"`
	RetentionPeriod Duration `toml:"retention_period"`
	// DeadLetter names another queue in the same file (or already
	// registered) to receive exhausted messages.
	DeadLetter string `toml:"dead_letter"`
}

// FileConfig is a declarative set of queue definitions.
//
//	[[queues]]
//	name = "orders"
//	max_receive_count = 5
//	lease_duration = "2m"
//	dead_letter = "orders-dead"
//
//	[[queues]]
//	name = "orders-dead"
//	retention_period = "336h"
type FileConfig struct {
	Queues []QueueSpec `toml:"queues"`
}

// LoadFile parses a TOML provisioning file.
func LoadFile(path string) (*FileConfig, error) {
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse queue config %s: %w", path, err)
	}
	for i, def := range cfg.Queues {
		if def.Name == "" {
			return nil, fmt.Errorf("queue config %s: queue %d has no name", path, i)
		}
	}
	return &cfg, nil
}

// Apply provisions every queue in the file config, wiring dead-letter links
// after all queues exist. Queues already present (locally or on the backend)
// are resolved instead of re-created, so Apply is safe to run at startup of
// every process sharing the same backend.
func (r *Registry) Apply(ctx context.Context, cfg *FileConfig, opts ...QueueOption) error {
	// Dead-letter targets must exist before the queues that reference
	// them, so provision in two passes: targets first.
	referenced := make(map[string]bool)
	for _, def := range cfg.Queues {
		if def.DeadLetter != "" {
			referenced[def.DeadLetter] = true
		}
	}

	order := make([]QueueSpec, 0, len(cfg.Queues))
	for _, def := range cfg.Queues {
		if referenced[def.Name] {
			order = append(order, def)
		}
	}
	for _, def := range cfg.Queues {
		if !referenced[def.Name] {
			order = append(order, def)
		}
	}

	for _, def := range order {
		qcfg := r.defaults
		if def.MaxReceiveCount > 0 {
			qcfg.MaxReceiveCount = def.MaxReceiveCount
		}
		if def.LeaseDuration.Duration > 0 {
			qcfg.LeaseDuration = def.LeaseDuration.Duration
		}
		if def.RetentionPeriod.Duration > 0 {
			qcfg.RetentionPeriod = def.RetentionPeriod.Duration
		}

		qopts := opts
		if def.DeadLetter != "" {
			dlq, err := r.GetQueue(ctx, def.DeadLetter)
			if err != nil {
				return fmt.Errorf("apply queue %s: dead letter target: %w", def.Name, err)
			}
			qopts = append(append([]QueueOption(nil), opts...), WithDeadLetter(dlq))
		}

		_, err := r.CreateQueue(ctx, def.Name, qcfg, qopts...)
		if errors.Is(err, ErrQueueAlreadyExists) {
			_, err = r.GetQueue(ctx, def.Name, qopts...)
		}
		if err != nil {
			return fmt.Errorf("apply queue %s: %w", def.Name, err)
		}
	}
	return nil
}
