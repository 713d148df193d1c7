package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 50
)

// RateLimiter gates every outbound request, keyed by shop domain
type RateLimiter interface {
	Acquire(ctx context.Context, key string) error
}

type Client struct {
	apiVersion string
	httpClient *http.Client
	limiter    RateLimiter
	endpoint   func(shopDomain string) string
}

func NewClient(apiVersion string, limiter RateLimiter) *Client {
	c := &Client{
		apiVersion: apiVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
	}
	c.endpoint = func(shopDomain string) string {
		return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, c.apiVersion)
	}
	return c
}

// SetEndpoint overrides the API endpoint resolver (used in tests)
func (c *Client) SetEndpoint(fn func(shopDomain string) string) {
	c.endpoint = fn
}

// Order is one normalized upstream order record
type Order struct {
	ID              string
	Name            string
	CreatedAt       *time.Time
	ProcessedAt     *time.Time
	FinancialStatus string
	TotalAmount     float64
	Currency        string
	CustomerID      string
	CustomerEmail   string
	Tags            []string
	DiscountCodes   []string
	LandingPage     string
	ReferrerURL     string
	UTMSource       string
	UTMMedium       string
	UTMCampaign     string
	UTMContent      string
	SourceName      string
	LineItems       []LineItem
	Raw             map[string]interface{}
}

type LineItem struct {
	ID        string
	Title     string
	SKU       string
	ProductID string
	Quantity  int
	Price     float64
}

// OrdersPage is one page of the upstream orders query
type OrdersPage struct {
	Orders      []Order
	NextCursor  string
	HasMore     bool
	UsedMinimal bool
}

// richOrdersQuery includes customer journey detail (UTM parameters,
// landing page, referrer). Not all API versions and plans expose it.
const richOrdersQuery = `
query($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: PROCESSED_AT) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        legacyResourceId
        name
        createdAt
        processedAt
        displayFinancialStatus
        sourceName
        tags
        discountCodes
        totalPriceSet { shopMoney { amount currencyCode } }
        customer { legacyResourceId email }
        customerJourneySummary {
          lastVisit {
            landingPage
            referrerUrl
            utmParameters { source medium campaign content }
          }
        }
        lineItems(first: 50) {
          edges {
            node {
              id
              title
              sku
              quantity
              product { legacyResourceId }
              originalUnitPriceSet { shopMoney { amount } }
            }
          }
        }
      }
    }
  }
}`

// minimalOrdersQuery is the reduced-fidelity fallback: amounts and ids
// without attribution detail.
const minimalOrdersQuery = `
query($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: PROCESSED_AT) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        legacyResourceId
        name
        createdAt
        processedAt
        displayFinancialStatus
        sourceName
        tags
        discountCodes
        totalPriceSet { shopMoney { amount currencyCode } }
        customer { legacyResourceId email }
        lineItems(first: 50) {
          edges {
            node {
              id
              title
              sku
              quantity
              product { legacyResourceId }
              originalUnitPriceSet { shopMoney { amount } }
            }
          }
        }
      }
    }
  }
}`

// OrdersPage fetches one page of orders matching search, resuming from
// cursor. If the rich query returns GraphQL errors, the page is retried
// once with the minimal shape and flagged UsedMinimal; the next page
// tries the rich query again.
func (c *Client) OrdersPage(ctx context.Context, shopDomain, accessToken, search, cursor string, pageSize int) (*OrdersPage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	page, gqlErrs, err := c.runOrdersQuery(ctx, shopDomain, accessToken, richOrdersQuery, search, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	if len(gqlErrs) == 0 {
		return page, nil
	}

	log.Printf("Rich orders query failed for %s (%s), falling back to minimal query", shopDomain, strings.Join(gqlErrs, "; "))
	page, gqlErrs, err = c.runOrdersQuery(ctx, shopDomain, accessToken, minimalOrdersQuery, search, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	if len(gqlErrs) > 0 {
		return nil, &UpstreamError{Status: http.StatusOK, Body: strings.Join(gqlErrs, "; ")}
	}
	page.UsedMinimal = true
	return page, nil
}

func (c *Client) runOrdersQuery(ctx context.Context, shopDomain, accessToken, query, search, cursor string, pageSize int) (*OrdersPage, []string, error) {
	if err := c.limiter.Acquire(ctx, shopDomain); err != nil {
		return nil, nil, err
	}

	variables := map[string]interface{}{
		"first": pageSize,
		"query": search,
	}
	if cursor != "" {
		variables["after"] = cursor
	}

	body, gqlErrs, err := c.post(ctx, shopDomain, accessToken, query, variables)
	if err != nil {
		return nil, nil, err
	}
	if len(gqlErrs) > 0 {
		return nil, gqlErrs, nil
	}

	page, err := parseOrdersPage(body)
	if err != nil {
		return nil, nil, err
	}
	return page, nil, nil
}

// post executes one GraphQL request and returns the raw response body
// plus any GraphQL-level errors. Transport and HTTP-status failures are
// returned as typed errors.
func (c *Client) post(ctx context.Context, shopDomain, accessToken, query string, variables map[string]interface{}) ([]byte, []string, error) {
	reqBody := map[string]interface{}{
		"query":     query,
		"variables": variables,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(shopDomain), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, msgs, nil
	}

	return body, nil, nil
}

type moneySet struct {
	ShopMoney struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"shopMoney"`
}

type orderNode struct {
	ID                     string   `json:"id"`
	LegacyResourceID       string   `json:"legacyResourceId"`
	Name                   string   `json:"name"`
	CreatedAt              string   `json:"createdAt"`
	ProcessedAt            string   `json:"processedAt"`
	DisplayFinancialStatus string   `json:"displayFinancialStatus"`
	SourceName             string   `json:"sourceName"`
	Tags                   []string `json:"tags"`
	DiscountCodes          []string `json:"discountCodes"`
	TotalPriceSet          moneySet `json:"totalPriceSet"`
	Customer               *struct {
		LegacyResourceID string `json:"legacyResourceId"`
		Email            string `json:"email"`
	} `json:"customer"`
	CustomerJourneySummary *struct {
		LastVisit *struct {
			LandingPage   string `json:"landingPage"`
			ReferrerURL   string `json:"referrerUrl"`
			UTMParameters *struct {
				Source   string `json:"source"`
				Medium   string `json:"medium"`
				Campaign string `json:"campaign"`
				Content  string `json:"content"`
			} `json:"utmParameters"`
		} `json:"lastVisit"`
	} `json:"customerJourneySummary"`
	LineItems struct {
		Edges []struct {
			Node struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				SKU      string `json:"sku"`
				Quantity int    `json:"quantity"`
				Product  *struct {
					LegacyResourceID string `json:"legacyResourceId"`
				} `json:"product"`
				OriginalUnitPriceSet moneySet `json:"originalUnitPriceSet"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`
}

func parseOrdersPage(body []byte) (*OrdersPage, error) {
	var resp struct {
		Data struct {
			Orders struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Edges []struct {
					Node json.RawMessage `json:"node"`
				} `json:"edges"`
			} `json:"orders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse orders response: %w", err)
	}

	page := &OrdersPage{
		NextCursor: resp.Data.Orders.PageInfo.EndCursor,
		HasMore:    resp.Data.Orders.PageInfo.HasNextPage,
	}

	for _, edge := range resp.Data.Orders.Edges {
		var node orderNode
		if err := json.Unmarshal(edge.Node, &node); err != nil {
			log.Printf("Warning: failed to parse order node: %v", err)
			continue
		}

		var raw map[string]interface{}
		_ = json.Unmarshal(edge.Node, &raw)

		page.Orders = append(page.Orders, nodeToOrder(node, raw))
	}

	return page, nil
}

func nodeToOrder(node orderNode, raw map[string]interface{}) Order {
	order := Order{
		ID:              firstNonEmpty(node.LegacyResourceID, node.ID),
		Name:            node.Name,
		CreatedAt:       parseTime(node.CreatedAt),
		ProcessedAt:     parseTime(node.ProcessedAt),
		FinancialStatus: strings.ToLower(node.DisplayFinancialStatus),
		SourceName:      node.SourceName,
		Tags:            node.Tags,
		DiscountCodes:   node.DiscountCodes,
		Currency:        node.TotalPriceSet.ShopMoney.CurrencyCode,
		Raw:             raw,
	}
	order.TotalAmount = parseAmount(node.TotalPriceSet.ShopMoney.Amount)

	if node.Customer != nil {
		order.CustomerID = node.Customer.LegacyResourceID
		order.CustomerEmail = node.Customer.Email
	}

	if node.CustomerJourneySummary != nil && node.CustomerJourneySummary.LastVisit != nil {
		visit := node.CustomerJourneySummary.LastVisit
		order.LandingPage = visit.LandingPage
		order.ReferrerURL = visit.ReferrerURL
		if visit.UTMParameters != nil {
			order.UTMSource = visit.UTMParameters.Source
			order.UTMMedium = visit.UTMParameters.Medium
			order.UTMCampaign = visit.UTMParameters.Campaign
			order.UTMContent = visit.UTMParameters.Content
		}
	}

	for _, edge := range node.LineItems.Edges {
		item := LineItem{
			ID:       edge.Node.ID,
			Title:    edge.Node.Title,
			SKU:      edge.Node.SKU,
			Quantity: edge.Node.Quantity,
			Price:    parseAmount(edge.Node.OriginalUnitPriceSet.ShopMoney.Amount),
		}
		if edge.Node.Product != nil {
			item.ProductID = edge.Node.Product.LegacyResourceID
		}
		order.LineItems = append(order.LineItems, item)
	}

	return order
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func parseAmount(value string) float64 {
	if value == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return amount
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
