package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/internal/service/auth"
	pkghttp "MarketPull/pkg/http"
	"MarketPull/pkg/util"
)

// Endpoint describes one exchange REST series: path, transaction id and the
// payload fields to read. Field names vary per endpoint family, so unset
// fields fall back to the common candidate lists below.
type Endpoint struct {
	Path        string
	TrID        string
	Params      map[string]string
	PeriodParam string
	ResultPath  string
	DateField   string
	ValueField  string
}

var (
	dateCandidates  = []string{"stck_bsop_date", "bsop_date", "bas_dt", "trd_dd", "date"}
	valueCandidates = []string{"stck_prpr", "stck_clpr", "clpr", "close", "last", "prpr", "idx_clpr"}
	resultKeys      = []string{"output2", "output1", "output"}
)

// ExchangeAdapter is the designated primary source: the authenticated
// exchange REST API. Without a live session every attempt reports
// unavailable so the chain falls through.
type ExchangeAdapter struct {
	baseURL string
	session *auth.Session
	client  *pkghttp.Client
	series  map[string]Endpoint
}

// NewExchangeAdapter builds the primary adapter. series maps the catalog's
// exchange symbols onto endpoints.
func NewExchangeAdapter(baseURL string, session *auth.Session, client *pkghttp.Client, series map[string]Endpoint) *ExchangeAdapter {
	return &ExchangeAdapter{baseURL: baseURL, session: session, client: client, series: series}
}

func (a *ExchangeAdapter) Name() string { return "exchange" }

func (a *ExchangeAdapter) Attempt(ctx context.Context, req catalog.Request) (models.Series, error) {
	if !a.session.Live() {
		return nil, fmt.Errorf("%w: no live credentials", ErrUnavailable)
	}
	sym, err := symbolFor(req, a.Name())
	if err != nil {
		return nil, err
	}
	ep, ok := a.series[sym]
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint for %s", ErrUnavailable, sym)
	}

	token, err := a.session.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}

	periods := periodsOr(req, 120)
	params := make(map[string][]string, len(ep.Params)+1)
	for k, v := range ep.Params {
		params[k] = []string{v}
	}
	if ep.PeriodParam != "" {
		params[ep.PeriodParam] = []string{strconv.Itoa(periods)}
	}

	var payload map[string]json.RawMessage
	err = a.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         a.baseURL + ep.Path,
		QueryParams: params,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
			"tr_id":         ep.TrID,
			"custtype":      "P",
		},
	}, &payload)
	if err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && (se.Code == 401 || se.Code == 403) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthFailure, se.Code)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	items, err := extractItems(payload, ep.ResultPath)
	if err != nil {
		return nil, err
	}
	series, err := normalizeSeries(items, ep)
	if err != nil {
		return nil, err
	}
	if len(series) > periods {
		series = series[len(series)-periods:]
	}
	return series, nil
}

func extractItems(payload map[string]json.RawMessage, resultPath string) ([]map[string]any, error) {
	keys := resultKeys
	if resultPath != "" {
		keys = append([]string{resultPath}, resultKeys...)
	}
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			// snapshot endpoints return a single object instead of an array
			var one map[string]any
			if err2 := json.Unmarshal(raw, &one); err2 != nil {
				return nil, fmt.Errorf("%w: result %s: %v", ErrMalformedPayload, key, err)
			}
			items = []map[string]any{one}
		}
		if len(items) == 0 {
			return nil, ErrEmptyResult
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: no result array", ErrMalformedPayload)
}

func normalizeSeries(items []map[string]any, ep Endpoint) (models.Series, error) {
	dateKeys := dateCandidates
	if ep.DateField != "" {
		dateKeys = append([]string{ep.DateField}, dateCandidates...)
	}
	valueKeys := valueCandidates
	if ep.ValueField != "" {
		valueKeys = append([]string{ep.ValueField}, valueCandidates...)
	}

	series := make(models.Series, 0, len(items))
	for _, item := range items {
		valueRaw, ok := pickField(item, valueKeys)
		if !ok {
			continue
		}
		v, ok := toFloat(valueRaw)
		if !ok {
			continue
		}
		// snapshot rows carry no trade date; stamp them with the current time
		ts := util.Now()
		if dateRaw, ok := pickField(item, dateKeys); ok {
			parsed, err := util.ParseLocalDate(fmt.Sprint(dateRaw))
			if err != nil {
				continue
			}
			ts = parsed
		}
		series = append(series, models.Point{Time: ts, Value: v})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no parsable rows", ErrMalformedPayload)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

func pickField(item map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
