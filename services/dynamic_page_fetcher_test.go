package services

import (
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-collector/config"
	"github.com/stretchr/testify/assert"
)

func TestNewDynamicPageFetcherUsesConfiguredRenderTimeout(t *testing.T) {
	cfg := config.NewDefaultCollectorConfiguration()
	cfg.RenderTimeout = 45 * time.Second

	fetcher := NewDynamicPageFetcher(cfg)
	assert.Equal(t, 45*time.Second, fetcher.timeout)
}
