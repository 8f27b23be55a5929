package data_source

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"trade-scanner/src/helpers"
	"trade-scanner/src/logger"
	"trade-scanner/src/models"
)

// -----------------------------------------------------------------------------
// RestSnapshotSource
//
// Point-in-time price lookups over the provider's REST surface. The
// streaming path never calls this; it exists so the routes can answer
// price questions for symbols nobody is streaming.
// -----------------------------------------------------------------------------

type RestSnapshotSource struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	HttpClient *http.Client
}

// -----------------------------------------------------------------------------

// lastTradeResponse mirrors the provider's /v2/last/trade payload.
type lastTradeResponse struct {
	Status  string `json:"status"`
	Results struct {
		Price     float64 `json:"p"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

// prevCloseResponse mirrors the provider's /v2/aggs/ticker/{sym}/prev payload.
type prevCloseResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Close float64 `json:"c"`
	} `json:"results"`
}

// -----------------------------------------------------------------------------

func NewRestSnapshotSource(cfg *models.MConfig, log *logger.Logger) *RestSnapshotSource {
	return &RestSnapshotSource{
		Config: cfg,
		Logger: log,
		HttpClient: &http.Client{
			Timeout: time.Duration(cfg.Snapshot.RequestTimeout) * time.Second,
		},
	}
}

// -----------------------------------------------------------------------------

// FetchSnapshot returns the last trade price and previous session close
// for one symbol.
func (s *RestSnapshotSource) FetchSnapshot(symbol string) (models.MPriceSnapshot, error) {
	var trade lastTradeResponse
	path := fmt.Sprintf("/v2/last/trade/%s", url.PathEscape(symbol))
	if err := s.getJSON(path, &trade); err != nil {
		return models.MPriceSnapshot{}, err
	}

	var prev prevCloseResponse
	path = fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(symbol))
	if err := s.getJSON(path, &prev); err != nil {
		return models.MPriceSnapshot{}, err
	}

	snapshot := models.MPriceSnapshot{
		Symbol:    symbol,
		LastPrice: trade.Results.Price,
		Timestamp: trade.Results.Timestamp,
	}
	if len(prev.Results) > 0 {
		snapshot.PrevClose = prev.Results[0].Close
	}
	return snapshot, nil
}

// -----------------------------------------------------------------------------

// getJSON performs a GET with bounded retries and decodes the body.
func (s *RestSnapshotSource) getJSON(path string, out interface{}) error {
	reqUrl, err := url.Parse(s.Config.Snapshot.BaseURL + path)
	if err != nil {
		return err
	}

	q := reqUrl.Query()
	q.Add("apiKey", s.Config.Stream.APIKey)
	reqUrl.RawQuery = q.Encode()

	maxRetries := s.Config.Snapshot.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i*i) * time.Second) // Exponential backoff
		}

		resp, err := s.HttpClient.Get(reqUrl.String())
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("snapshot request returned HTTP %d", resp.StatusCode)
			// Client errors won't improve with retries
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				break
			}
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			lastErr = helpers.NewProtocolError("snapshot payload is not valid JSON", err)
			continue
		}
		return nil
	}

	return helpers.NewTransientNetworkError(fmt.Sprintf("snapshot fetch failed after %d attempts", maxRetries+1), lastErr)
}
