package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrLocationNotFound = errors.New("location not found")

type Conditions struct {
	City       string
	Temp       string
	FeelsLike  string
	Text       string
	WindDir    string
	WindScale  string
	Humidity   string
	ObservedAt string
}

// Weather resolves a place name to a location id, then fetches current
// conditions for it. Both endpoints follow the QWeather API shape.
type Weather struct {
	key string
	geo *resty.Client
	api *resty.Client
}

func NewWeather(geoURL, apiURL, key string) *Weather {
	return &Weather{
		key: key,
		geo: resty.New().SetBaseURL(geoURL).SetTimeout(10 * time.Second),
		api: resty.New().SetBaseURL(apiURL).SetTimeout(10 * time.Second),
	}
}

func (w *Weather) Lookup(ctx context.Context, location string) (*Conditions, error) {
	type geoLocation struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Adm2 string `json:"adm2"`
	}
	type geoResponse struct {
		Location []geoLocation `json:"location"`
	}

	geoResp, err := w.geo.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      w.key,
			"location": location,
		}).
		SetResult(&geoResponse{}).
		Get("/v2/city/lookup")
	if err != nil {
		return nil, fmt.Errorf("looking up location: %w", err)
	}
	if geoResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected geo status code: %d %s", geoResp.StatusCode(), string(geoResp.Body()))
	}

	locations := geoResp.Result().(*geoResponse).Location
	if len(locations) == 0 {
		return nil, ErrLocationNotFound
	}
	loc := locations[0]

	type nowResponse struct {
		Now *struct {
			Temp      string `json:"temp"`
			FeelsLike string `json:"feelsLike"`
			Text      string `json:"text"`
			WindDir   string `json:"windDir"`
			WindScale string `json:"windScale"`
			Humidity  string `json:"humidity"`
			ObsTime   string `json:"obsTime"`
		} `json:"now"`
	}

	nowResp, err := w.api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":      w.key,
			"location": loc.ID,
		}).
		SetResult(&nowResponse{}).
		Get("/v7/weather/now")
	if err != nil {
		return nil, fmt.Errorf("fetching weather: %w", err)
	}
	if nowResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected weather status code: %d %s", nowResp.StatusCode(), string(nowResp.Body()))
	}

	now := nowResp.Result().(*nowResponse).Now
	if now == nil {
		return nil, fmt.Errorf("empty weather response for %s", loc.ID)
	}

	return &Conditions{
		City:       fmt.Sprintf("%s, %s", loc.Name, loc.Adm2),
		Temp:       now.Temp,
		FeelsLike:  now.FeelsLike,
		Text:       now.Text,
		WindDir:    now.WindDir,
		WindScale:  now.WindScale,
		Humidity:   now.Humidity,
		ObservedAt: now.ObsTime,
	}, nil
}
