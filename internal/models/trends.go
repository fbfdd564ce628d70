package models

// TimeSeries is interest over time for one keyword, as served by the trends backend.
type TimeSeries struct {
	Dates  []string `json:"dates"`
	Values []int    `json:"values"`
}

// TrendsResponse is the body of GET /trends/{category}/{keyword}.
type TrendsResponse struct {
	InterestOverTime map[string]TimeSeries     `json:"interest_over_time"`
	InterestByRegion map[string]map[string]int `json:"interest_by_region"`
}

type Category struct {
	ID            int      `json:"id"`
	Subcategories []string `json:"subcategories"`
}

// Categories is the body of GET /categories keyed by category name.
type Categories map[string]Category

type Video struct {
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	Channel   string `json:"channel"`
	Views     int64  `json:"views"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type TopVideos struct {
	Videos []Video `json:"videos"`
}

type Sentiment struct {
	TotalAnalyzed        int                `json:"total_analyzed"`
	SentimentPercentages map[string]float64 `json:"sentiment_percentages"`
}

type Tag struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type TrendingTags struct {
	Tags []Tag `json:"tags"`
}

// RelatedQueries are the top and rising searches around a keyword.
type RelatedQueries struct {
	Top    []string `json:"top"`
	Rising []string `json:"rising"`
}

// Point is one (date, interest) observation.
type Point struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// Series converts the backend's parallel arrays into ordered points.
func (ts TimeSeries) Series() []Point {
	n := min(len(ts.Dates), len(ts.Values))
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		out[i] = Point{Date: ts.Dates[i], Value: ts.Values[i]}
	}
	return out
}
