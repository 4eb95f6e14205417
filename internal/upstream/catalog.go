package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"shopping-assistant-backend/internal/validator"
)

type Product struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	Brand           string  `json:"brand"`
	Price           float64 `json:"price"`
	Color           string  `json:"color"`
	Description     string  `json:"description"`
	ImageURL        string  `json:"image_url"`
	Tags            string  `json:"tags"`
	PublishTime     string  `json:"publish_time"`
	SellingQuantity string  `json:"selling_quantity"`
}

type productsResponse struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}

func (c *Client) Products(ctx context.Context, category, color string) ([]Product, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if color != "" {
		q.Set("color", color)
	}
	path := c.cfg.ProductsPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out productsResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out.Products, nil
}

func (c *Client) SearchProducts(ctx context.Context, query, category string) ([]Product, error) {
	q := url.Values{}
	q.Set("q", query)
	if category != "" {
		q.Set("category", category)
	}
	var out productsResponse
	if err := c.getJSON(ctx, c.cfg.ProductsPath+"/search?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return out.Products, nil
}

func (c *Client) Product(ctx context.Context, id int) (*Product, error) {
	var out Product
	if err := c.getJSON(ctx, c.cfg.ProductsPath+"/"+strconv.Itoa(id), &out); err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &out, nil
}

// Options returns the distinct values of a catalog column, capped to
// OptionsMax entries plus "More" when the list is longer.
func (c *Client) Options(ctx context.Context, column string) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, c.cfg.OptionsPath+"?column="+url.QueryEscape(column), &out); err != nil {
		return nil, fmt.Errorf("get options for %s: %w", column, err)
	}
	return CapOptions(out), nil
}

func CapOptions(options []string) []string {
	if options == nil {
		return []string{}
	}
	if len(options) <= validator.OptionsMax {
		return options
	}
	out := append([]string(nil), options[:validator.OptionsMax]...)
	return append(out, validator.MoreOption)
}

// ProductsByName fetches the products matching a product name chosen by the
// model, browsing the category or searching as ResolveProductQuery decides.
func (c *Client) ProductsByName(ctx context.Context, productName string) ([]Product, error) {
	q := ResolveProductQuery(productName)
	if q.Search == "" {
		return c.Products(ctx, q.Category, "")
	}
	return c.SearchProducts(ctx, q.Search, q.Category)
}
