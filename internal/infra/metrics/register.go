package metrics

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pending     []prometheus.Collector
	defaultOnce sync.Once
)

// register queues collectors from each file's init for Register.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// Register adds every collector of this package to reg. A collector reg already
// holds is skipped, so a registry can be handed in more than once.
func Register(reg prometheus.Registerer) error {
	for _, c := range pending {
		if err := reg.Register(c); err != nil {
			var dup prometheus.AlreadyRegisteredError
			if errors.As(err, &dup) {
				continue
			}
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}

// MustRegister registers with the default registry served on /metrics; it panics on a
// descriptor conflict.
func MustRegister() {
	defaultOnce.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}

// norm folds label values so callers need not agree on case.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
