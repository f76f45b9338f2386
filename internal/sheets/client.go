// Package sheets mirrors the registration export into a Google Sheet.
package sheets

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// Client writes to a single spreadsheet.
type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// New authenticates with a service account JSON key file.
func New(ctx context.Context, serviceAccountJSONPath, spreadsheetID string) (*Client, error) {
	if _, err := os.Stat(serviceAccountJSONPath); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(serviceAccountJSONPath),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// NewWithService wraps an existing service, e.g. one built with
// option.WithEndpoint for tests.
func NewWithService(srv *sheetsv4.Service, spreadsheetID string) *Client {
	return &Client{srv: srv, spreadsheetID: spreadsheetID}
}

// ReplaceRows clears the tab and writes header followed by rows.
func (c *Client) ReplaceRows(ctx context.Context, tab string, header []string, rows [][]string) error {
	rng := tab + "!A:Z"
	if _, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &sheetsv4.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, toRow(header))
	for _, r := range rows {
		values = append(values, toRow(r))
	}
	vr := &sheetsv4.ValueRange{Values: values}
	if _, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}
	return nil
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, v := range cells {
		row[i] = v
	}
	return row
}
