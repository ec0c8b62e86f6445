package repository

import (
	"time"

	"github.com/okian/cohort/internal/domain/model"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithAdmins seeds the admin roster.
func WithAdmins(admins ...model.Admin) Option {
	return func(s *MemoryStore) {
		for _, a := range admins {
			email := model.NormalizeEmail(a.Email)
			if email == "" {
				continue
			}
			s.admins[email] = model.Admin{Email: email, Name: a.Name}
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
