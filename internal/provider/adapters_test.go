package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wine-resolver/pkg/brave"
	bravemocks "github.com/sells-group/wine-resolver/pkg/brave/mocks"
	"github.com/sells-group/wine-resolver/pkg/google"
	googlemocks "github.com/sells-group/wine-resolver/pkg/google/mocks"
	"github.com/sells-group/wine-resolver/pkg/serper"
	serpermocks "github.com/sells-group/wine-resolver/pkg/serper/mocks"
)

func TestSerper_Search(t *testing.T) {
	client := serpermocks.NewMockClient(t)
	client.On("Search", mock.Anything, "daou cabernet site:vivino.com", 5).Return(&serper.SearchResponse{
		Organic: []serper.Organic{
			{Title: "Daou Cabernet Sauvignon 2022 | Vivino", Link: "https://www.vivino.com/daou-cab/w/11?year=2022&utm=x", Rating: 4.2, RatingCount: 830, PriceRange: "$28"},
			{Title: "Daou on Wine.com", Link: "https://www.wine.com/daou"},
			{Title: "Daou Reserve", Link: "https://www.vivino.com/daou-reserve/w/12"},
		},
	}, nil)

	p := NewSerper(Settings{Key: "k", MaxResults: 5, Site: vivino}, client)
	assert.Equal(t, NameSerper, p.Name())
	assert.True(t, p.Available())

	cands, err := p.Search(context.Background(), "daou cabernet")
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "Daou Cabernet Sauvignon 2022", cands[0].Name)
	assert.Equal(t, "https://www.vivino.com/daou-cab/w/11?year=2022", cands[0].URL)
	require.NotNil(t, cands[0].Rating)
	assert.InDelta(t, 4.2, *cands[0].Rating, 0.001)
	require.NotNil(t, cands[0].NumRatings)
	assert.Equal(t, 830, *cands[0].NumRatings)
	require.NotNil(t, cands[0].Price)
	assert.InDelta(t, 28.0, *cands[0].Price, 0.001)

	assert.Nil(t, cands[1].Rating)
	assert.Nil(t, cands[1].NumRatings)
	assert.Nil(t, cands[1].Price)
}

func TestSerper_SearchError(t *testing.T) {
	client := serpermocks.NewMockClient(t)
	apiErr := &serper.APIError{StatusCode: 429, Body: "slow down"}
	client.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, apiErr)

	p := NewSerper(Settings{Key: "k", MaxResults: 5}, client)
	cands, err := p.Search(context.Background(), "opus one")
	assert.Nil(t, cands)
	assert.Equal(t, apiErr, err)
}

func TestSerper_UnavailableWithoutKey(t *testing.T) {
	p := NewSerper(Settings{}, nil)
	assert.False(t, p.Available())
}

func TestGoogleCSE_Search(t *testing.T) {
	client := googlemocks.NewMockClient(t)
	client.On("Search", mock.Anything, "opus one 2019 site:vivino.com", 10).Return(&google.SearchResponse{
		Items: []google.Item{
			{
				Title: "Opus One 2019 - Vivino",
				Link:  "https://www.vivino.com/opus-one/w/77/?year=2019",
				Pagemap: google.Pagemap{
					AggregateRating: []google.AggregateRating{{RatingValue: "4.6", ReviewCount: "12,004"}},
					Offer:           []google.Offer{{Price: "389.99", PriceCurrency: "USD"}},
				},
			},
			{Title: "Opus One", Link: "https://www.vivino.com/search?q=opus"},
		},
	}, nil)

	p := NewGoogleCSE(Settings{Key: "k", MaxResults: 10, Site: vivino}, "cx", client)
	assert.Equal(t, NameGoogleCSE, p.Name())
	assert.True(t, p.Available())

	cands, err := p.Search(context.Background(), "opus one 2019")
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "Opus One 2019", c.Name)
	assert.Equal(t, "https://www.vivino.com/opus-one/w/77?year=2019", c.URL)
	require.NotNil(t, c.Rating)
	assert.InDelta(t, 4.6, *c.Rating, 0.001)
	require.NotNil(t, c.NumRatings)
	assert.Equal(t, 12004, *c.NumRatings)
	require.NotNil(t, c.Price)
	assert.InDelta(t, 389.99, *c.Price, 0.001)
}

func TestGoogleCSE_NeedsCX(t *testing.T) {
	assert.False(t, NewGoogleCSE(Settings{Key: "k"}, "", nil).Available())
	assert.False(t, NewGoogleCSE(Settings{}, "cx", nil).Available())
	assert.True(t, NewGoogleCSE(Settings{Key: "k"}, "cx", nil).Available())
}

func TestBrave_Search(t *testing.T) {
	client := bravemocks.NewMockClient(t)
	client.On("Search", mock.Anything, "whispering angel rose site:vivino.com", 20).Return(&brave.SearchResponse{
		Web: brave.WebResults{Results: []brave.Result{
			{Title: "Whispering Angel Rosé | Vivino", URL: "https://www.vivino.com/whispering-angel/w/5"},
			{Title: "Whispering Angel review", URL: "https://blog.example.com/w/5"},
		}},
	}, nil)

	p := NewBrave(Settings{Key: "k", MaxResults: 20, Site: vivino}, client)
	assert.Equal(t, NameBrave, p.Name())

	cands, err := p.Search(context.Background(), "whispering angel rose")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Whispering Angel Rosé", cands[0].Name)
	assert.Equal(t, "https://www.vivino.com/whispering-angel/w/5", cands[0].URL)
	assert.Nil(t, cands[0].Rating)
}
