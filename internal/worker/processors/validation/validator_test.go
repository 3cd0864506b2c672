package validation

import (
	"strings"
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/stretchr/testify/assert"
)

const placeholder = "https://placehold.co/600x600"

func codes(issues []Issue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidateProduct(t *testing.T) {
	v := New(Options{PlaceholderImage: placeholder, MaxTitleLen: 20}, logger.NewNop())

	tests := []struct {
		name     string
		product  models.Product
		want     []string
		blocking bool
	}{
		{
			name:    "clean",
			product: models.Product{ID: "1", Name: "Sofa", Price: 100, Link: "https://shop/1", Images: []string{"https://img/1.jpg"}},
		},
		{
			name:     "missing title and price",
			product:  models.Product{ID: "2", Name: "  ", Link: "https://shop/2", Images: []string{"https://img/2.jpg"}},
			want:     []string{IssueMissingTitle, IssueZeroPrice},
			blocking: true,
		},
		{
			name:    "placeholder only and no link",
			product: models.Product{ID: "3", Name: "Lamp", Price: 10, Images: []string{placeholder}},
			want:    []string{IssueMissingLink, IssuePlaceholderImage},
		},
		{
			name:    "long title counts runes",
			product: models.Product{ID: "4", Name: strings.Repeat("á", 21), Price: 10, Link: "x", Images: []string{"y"}},
			want:    []string{IssueLongTitle},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := v.ValidateProduct(&tt.product)
			assert.Equal(t, tt.want, codes(issues))
			assert.Equal(t, tt.blocking, Blocking(issues))
		})
	}
}

func TestNoImagesIsPlaceholderWithoutConfiguredURL(t *testing.T) {
	v := New(Options{}, logger.NewNop())

	issues := v.ValidateProduct(&models.Product{ID: "1", Name: "Rug", Price: 5, Link: "l"})
	assert.Equal(t, []string{IssuePlaceholderImage}, codes(issues))
}
