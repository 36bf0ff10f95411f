package lookup

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type Quote struct {
	Text   string `json:"hitokoto"`
	Source string `json:"from"`
}

type Quotes struct {
	url    string
	client *resty.Client
}

func NewQuotes(url string) *Quotes {
	return &Quotes{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (q *Quotes) Random(ctx context.Context) (*Quote, error) {
	resp, err := q.client.R().
		SetContext(ctx).
		SetResult(&Quote{}).
		Get(q.url)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	quote := resp.Result().(*Quote)
	if quote.Text == "" {
		return nil, fmt.Errorf("empty quote")
	}
	return quote, nil
}
