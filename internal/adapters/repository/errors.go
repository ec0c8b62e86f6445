package repository

import (
	"fmt"

	"github.com/okian/cohort/internal/domain/model"
)

// Sentinel kinds for store errors. All of them match model.ErrConflict.
var (
	ErrAlreadyExists   = fmt.Errorf("record already exists: %w", model.ErrConflict)
	ErrVersionConflict = fmt.Errorf("phase config was modified concurrently: %w", model.ErrConflict)
	ErrStageMismatch   = fmt.Errorf("application stage changed: %w", model.ErrConflict)
)
