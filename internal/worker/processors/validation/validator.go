// Package validation checks catalog products against feed quality rules
// before they are exported.
package validation

import (
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes.
const (
	IssueMissingTitle     = "missing_title"
	IssueZeroPrice        = "zero_price"
	IssueMissingLink      = "missing_link"
	IssuePlaceholderImage = "placeholder_image"
	IssueLongTitle        = "long_title"
)

type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
}

type Options struct {
	PlaceholderImage string
	// MaxTitleLen flags longer titles as warnings; 0 disables the check.
	MaxTitleLen int
}

type Validator struct {
	opts   Options
	logger *logger.Logger
}

func New(opts Options, logger *logger.Logger) *Validator {
	return &Validator{
		opts:   opts,
		logger: logger,
	}
}

// ValidateProduct lists every rule p breaks. A product with an error-level
// issue does not belong in a feed.
func (v *Validator) ValidateProduct(p *models.Product) []Issue {
	var issues []Issue

	title := strings.TrimSpace(p.Name)
	if title == "" {
		issues = append(issues, Issue{IssueMissingTitle, SeverityError})
	} else if v.opts.MaxTitleLen > 0 && len([]rune(title)) > v.opts.MaxTitleLen {
		issues = append(issues, Issue{IssueLongTitle, SeverityWarning})
	}
	if p.Price <= 0 {
		issues = append(issues, Issue{IssueZeroPrice, SeverityError})
	}
	if strings.TrimSpace(p.Link) == "" {
		issues = append(issues, Issue{IssueMissingLink, SeverityWarning})
	}
	if v.placeholderOnly(p.Images) {
		issues = append(issues, Issue{IssuePlaceholderImage, SeverityWarning})
	}

	if len(issues) > 0 {
		v.logger.Debug("Product %s has %d feed issues", p.ID, len(issues))
	}
	return issues
}

func (v *Validator) placeholderOnly(images []string) bool {
	if len(images) == 0 {
		return true
	}
	if v.opts.PlaceholderImage == "" {
		return false
	}
	for _, img := range images {
		if img != v.opts.PlaceholderImage {
			return false
		}
	}
	return true
}

// Blocking reports whether any issue is error-level.
func Blocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
