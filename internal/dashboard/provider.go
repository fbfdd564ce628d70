// Package dashboard assembles the consumer-trends view for a keyword group from
// either built-in sample data or the trends backend.
package dashboard

import (
	"context"
	"errors"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
)

// ErrNotSupported is returned by providers for data they cannot serve. The
// dashboard leaves that section out instead of reporting an error.
var ErrNotSupported = errors.New("not supported by data provider")

// Provider is a source of keyword interest and YouTube data.
type Provider interface {
	Trends(ctx context.Context, category, keyword string, timeframe trends.Timeframe) (*models.TrendsResponse, error)
	RelatedQueries(ctx context.Context, keyword string) (*models.RelatedQueries, error)
	TopVideos(ctx context.Context, keyword string) (*models.TopVideos, error)
	Sentiment(ctx context.Context, keyword string) (*models.Sentiment, error)
	TrendingTags(ctx context.Context, keyword string) (*models.TrendingTags, error)
}

// BackendProvider serves live data through the trends backend.
type BackendProvider struct {
	client *trends.Client
}

func NewBackendProvider(client *trends.Client) *BackendProvider {
	return &BackendProvider{client: client}
}

func (p *BackendProvider) Trends(ctx context.Context, category, keyword string, timeframe trends.Timeframe) (*models.TrendsResponse, error) {
	return p.client.Trends(ctx, category, keyword, timeframe)
}

// RelatedQueries is not exposed by the backend.
func (p *BackendProvider) RelatedQueries(context.Context, string) (*models.RelatedQueries, error) {
	return nil, ErrNotSupported
}

func (p *BackendProvider) TopVideos(ctx context.Context, keyword string) (*models.TopVideos, error) {
	return p.client.TopVideos(ctx, keyword)
}

func (p *BackendProvider) Sentiment(ctx context.Context, keyword string) (*models.Sentiment, error) {
	return p.client.Sentiment(ctx, keyword)
}

func (p *BackendProvider) TrendingTags(ctx context.Context, keyword string) (*models.TrendingTags, error) {
	return p.client.TrendingTags(ctx, keyword)
}
