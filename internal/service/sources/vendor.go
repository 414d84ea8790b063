package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	pkghttp "MarketPull/pkg/http"
	"MarketPull/pkg/util"
)

// VendorAdapter is the backup vendor API: an unauthenticated daily-close
// chart endpoint. Values fetched here are always fallback-grade.
type VendorAdapter struct {
	baseURL  string
	client   *pkghttp.Client
	rangeTag string
	interval string
}

// NewVendorAdapter builds the backup adapter.
func NewVendorAdapter(baseURL string, client *pkghttp.Client) *VendorAdapter {
	return &VendorAdapter{baseURL: baseURL, client: client, rangeTag: "6mo", interval: "1d"}
}

func (a *VendorAdapter) Name() string { return "vendor" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (a *VendorAdapter) Attempt(ctx context.Context, req catalog.Request) (models.Series, error) {
	sym, err := symbolFor(req, a.Name())
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	err = a.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    fmt.Sprintf("%s/v8/finance/chart/%s", a.baseURL, sym),
		QueryParams: map[string][]string{
			"range":    {a.rangeTag},
			"interval": {a.interval},
		},
	}, &resp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, resp.Chart.Error.Code)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrEmptyResult
	}

	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	series := make(models.Series, 0, len(closes))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		series = append(series, models.Point{
			Time:  time.Unix(ts, 0).In(util.Local),
			Value: *closes[i],
		})
	}
	if len(series) == 0 {
		return nil, ErrEmptyResult
	}

	periods := periodsOr(req, 120)
	if len(series) > periods {
		series = series[len(series)-periods:]
	}
	return series, nil
}
