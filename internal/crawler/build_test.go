package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegistry(t *testing.T) {
	limiter := NewLimiter(2, 0, 1)
	r, err := BuildRegistry(
		[]string{"mercadolivre"},
		[]JSONLDSite{{Code: "shop", SearchURL: "https://www.shop.example/search?q=%s"}},
		&pageFetcher{},
		limiter,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"mercadolivre", "shop"}, r.Sites())

	matches := r.FindByURL("https://produto.mercadolivre.com.br/MLB-1")
	require.Len(t, matches, 1)
	assert.Equal(t, "mercadolivre", matches[0].Site())
}

func TestBuildRegistryRejectsBadConfig(t *testing.T) {
	limiter := NewLimiter(1, 0, 1)
	tests := []struct {
		name    string
		enabled []string
		jsonld  []JSONLDSite
	}{
		{"unknown builtin", []string{"gamma"}, nil},
		{"duplicate code", []string{"mercadolivre"}, []JSONLDSite{{Code: "mercadolivre", SearchURL: "https://x.example/?q=%s"}}},
		{"template without placeholder", nil, []JSONLDSite{{Code: "shop", SearchURL: "https://x.example/search"}}},
		{"nothing enabled", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRegistry(tt.enabled, tt.jsonld, &pageFetcher{}, limiter)
			assert.Error(t, err)
		})
	}
}
