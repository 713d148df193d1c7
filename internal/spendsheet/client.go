package spendsheet

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// readRange covers the operator-maintained spend sheet. Expected columns:
// shop_domain, date (YYYY-MM-DD), campaign, amount, currency.
const readRange = "Spend!A2:E"

// Row is one parsed spend entry from the sheet
type Row struct {
	ShopDomain string
	Date       time.Time
	Campaign   string
	Amount     float64
	Currency   string
}

type Client struct {
	credentialsJSON string
}

func NewClient(credentialsJSON string) *Client {
	return &Client{
		credentialsJSON: credentialsJSON,
	}
}

// FetchRows reads and parses the spend sheet. Rows that cannot be parsed
// are logged and skipped, so one bad cell never blocks the rest of the
// sheet.
func (c *Client) FetchRows(ctx context.Context, sheetID string) ([]Row, error) {
	config, err := google.JWTConfigFromJSON([]byte(c.credentialsJSON), sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Google credentials: %w", err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	resp, err := sheetsService.Spreadsheets.Values.Get(sheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read spend sheet %s: %w", sheetID, err)
	}

	log.Printf("Sheets API returned %d spend rows", len(resp.Values))
	return ParseRows(resp.Values), nil
}

// ParseRows converts raw sheet values into spend rows, skipping
// malformed ones
func ParseRows(values [][]interface{}) []Row {
	rows := make([]Row, 0, len(values))
	for i, value := range values {
		row, err := parseRow(value)
		if err != nil {
			log.Printf("skipping spend sheet row %d: %v", i+2, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func parseRow(value []interface{}) (Row, error) {
	if len(value) < 4 {
		return Row{}, fmt.Errorf("expected at least 4 columns, got %d", len(value))
	}

	domain := strings.TrimSpace(cellString(value[0]))
	if domain == "" {
		return Row{}, fmt.Errorf("missing shop domain")
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(cellString(value[1])))
	if err != nil {
		return Row{}, fmt.Errorf("invalid date %q: %w", cellString(value[1]), err)
	}

	campaign := strings.TrimSpace(cellString(value[2]))
	if campaign == "" {
		return Row{}, fmt.Errorf("missing campaign")
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(cellString(value[3])), 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid amount %q: %w", cellString(value[3]), err)
	}

	currency := "USD"
	if len(value) > 4 {
		if c := strings.TrimSpace(cellString(value[4])); c != "" {
			currency = strings.ToUpper(c)
		}
	}

	return Row{
		ShopDomain: domain,
		Date:       date,
		Campaign:   campaign,
		Amount:     amount,
		Currency:   currency,
	}, nil
}

func cellString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
