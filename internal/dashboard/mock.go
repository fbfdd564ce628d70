package dashboard

import (
	"context"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/trends"
)

var mockDates = []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29", "2024-02-05"}

var mockInterest = map[string][]int{
	"almond milk": {65, 70, 68, 72, 75, 78},
	"oat milk":    {78, 82, 85, 88, 90, 92},
	"soy milk":    {45, 48, 46, 50, 52, 55},
}

// state code -> almond, oat, soy
var mockRegions = map[string][3]int{
	"CA": {100, 80, 60}, "WA": {85, 95, 50}, "OR": {82, 90, 45}, "NY": {78, 70, 85},
	"MA": {75, 65, 70}, "CO": {72, 88, 55}, "VT": {70, 60, 75}, "CT": {68, 55, 68},
	"HI": {65, 72, 40}, "FL": {62, 50, 62}, "IL": {60, 80, 58}, "MN": {58, 85, 48},
	"GA": {55, 70, 65}, "TX": {52, 75, 52}, "NC": {50, 60, 50}, "VA": {48, 55, 48},
	"PA": {45, 50, 45}, "OH": {42, 48, 42}, "MI": {40, 45, 40}, "AZ": {38, 40, 38},
	"AL": {30, 35, 30}, "AR": {32, 38, 32}, "DE": {65, 70, 60}, "ID": {50, 55, 45},
	"IN": {48, 52, 40}, "KS": {35, 40, 30}, "KY": {40, 45, 35}, "LA": {42, 48, 38},
	"ME": {70, 75, 65}, "MD": {72, 78, 68}, "MS": {30, 35, 28}, "MO": {45, 50, 40},
	"MT": {55, 60, 50}, "NE": {38, 42, 32}, "NV": {60, 65, 55}, "NH": {75, 80, 70},
	"NJ": {80, 85, 75}, "NM": {40, 45, 35}, "ND": {30, 35, 25}, "OK": {40, 45, 35},
	"RI": {70, 75, 68}, "SC": {50, 55, 45}, "SD": {32, 38, 28}, "TN": {45, 50, 40},
	"UT": {60, 65, 55}, "WV": {35, 40, 30}, "WI": {50, 55, 45}, "WY": {30, 35, 25},
}

var mockRegionColumn = map[string]int{"almond milk": 0, "oat milk": 1, "soy milk": 2}

var mockRelated = models.RelatedQueries{
	Top:    []string{"almond milk brands", "best almond milk", "unsweetened almond milk", "organic almond milk"},
	Rising: []string{"oat milk vs almond milk", "homemade almond milk", "almond milk nutrition", "vanilla almond milk"},
}

var mockVideos = []models.Video{
	{Title: "How to Make Almond Milk at Home", Views: 2_300_000, Channel: "Healthy Living", Duration: "5:23"},
	{Title: "Oat Milk vs Almond Milk: Which is Better?", Views: 1_800_000, Channel: "Nutrition Facts", Duration: "8:15"},
	{Title: "Best Plant-Based Milk Taste Test", Views: 950_000, Channel: "Food Review", Duration: "12:30"},
	{Title: "The Rise of Alternative Milk Products", Views: 720_000, Channel: "Market Trends", Duration: "6:45"},
	{Title: "Almond Milk Recipe - Creamy & Delicious", Views: 680_000, Channel: "Vegan Kitchen", Duration: "4:20"},
}

// MockProvider serves fixed sample data for plant-based milk keywords. It
// ignores category and timeframe. Unknown keywords have no data.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (MockProvider) Trends(_ context.Context, _, keyword string, _ trends.Timeframe) (*models.TrendsResponse, error) {
	resp := &models.TrendsResponse{
		InterestOverTime: map[string]models.TimeSeries{},
		InterestByRegion: map[string]map[string]int{},
	}

	values, ok := mockInterest[keyword]
	if !ok {
		return resp, nil
	}
	resp.InterestOverTime[keyword] = models.TimeSeries{
		Dates:  append([]string(nil), mockDates...),
		Values: append([]int(nil), values...),
	}

	col := mockRegionColumn[keyword]
	regions := make(map[string]int, len(mockRegions))
	for code, v := range mockRegions {
		regions[code] = v[col]
	}
	resp.InterestByRegion[keyword] = regions
	return resp, nil
}

func (MockProvider) RelatedQueries(context.Context, string) (*models.RelatedQueries, error) {
	related := mockRelated
	return &related, nil
}

func (MockProvider) TopVideos(context.Context, string) (*models.TopVideos, error) {
	return &models.TopVideos{Videos: append([]models.Video(nil), mockVideos...)}, nil
}

func (MockProvider) Sentiment(context.Context, string) (*models.Sentiment, error) {
	return nil, ErrNotSupported
}

func (MockProvider) TrendingTags(context.Context, string) (*models.TrendingTags, error) {
	return nil, ErrNotSupported
}
