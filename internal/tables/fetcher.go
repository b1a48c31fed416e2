package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
)

// Fetcher loads table snapshots. Only tables present in the result are
// considered loaded.
type Fetcher interface {
	FetchTables(ctx context.Context, names []string) (map[string][]Row, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, names []string) (map[string][]Row, error)

// FetchTables implements Fetcher.
func (f FetcherFunc) FetchTables(ctx context.Context, names []string) (map[string][]Row, error) {
	return f(ctx, names)
}

// HTTPFetcher reads tables from the data API.
type HTTPFetcher struct {
	client     *apiclient.Client
	tablesPath string
	tablePath  string
}

// NewHTTPFetcher builds a fetcher for the batch endpoint tablesPath
// (GET ?names=a,b) and the single-table endpoint tablePath (GET /{name}).
func NewHTTPFetcher(client *apiclient.Client, tablesPath, tablePath string) *HTTPFetcher {
	return &HTTPFetcher{client: client, tablesPath: tablesPath, tablePath: tablePath}
}

type batchResponse struct {
	Tables map[string]json.RawMessage `json:"tables"`
}

type singleResponse struct {
	Table string          `json:"table"`
	Rows  json.RawMessage `json:"rows"`
}

// FetchTables requests every name in one call.
func (f *HTTPFetcher) FetchTables(ctx context.Context, names []string) (map[string][]Row, error) {
	if len(names) == 0 {
		return nil, ErrNoTables
	}
	var body batchResponse
	query := url.Values{"names": {strings.Join(names, ",")}}
	if err := f.client.GetJSON(ctx, f.tablesPath, query, &body); err != nil {
		return nil, err
	}
	out := make(map[string][]Row, len(body.Tables))
	for name, raw := range body.Tables {
		out[name] = decodeRows(raw)
	}
	return out, nil
}

// FetchTable requests a single table.
func (f *HTTPFetcher) FetchTable(ctx context.Context, name string) ([]Row, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}
	var body singleResponse
	if err := f.client.GetJSON(ctx, strings.TrimSuffix(f.tablePath, "/")+"/"+url.PathEscape(name), nil, &body); err != nil {
		return nil, err
	}
	return decodeRows(body.Rows), nil
}

// decodeRows accepts an array of objects. Anything else is an empty table,
// and array items that are not objects are dropped.
func decodeRows(raw json.RawMessage) []Row {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []Row{}
	}
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		var row Row
		if err := json.Unmarshal(item, &row); err != nil || row == nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

const fallbackMessage = "failed to load tables"

// errorMessage is the text kept in LastError: the server's own message when
// it sent one, the transport error otherwise.
func errorMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" && apiErr.Message != apiErr.StatusText {
			return apiErr.Message
		}
		return fallbackMessage
	}
	if err == nil || err.Error() == "" {
		return fallbackMessage
	}
	return err.Error()
}
