// Package catalog talks to the bulk-data product search endpoint and lists
// the downloadable files for each product. Only Data-type files are exposed;
// documentation and schema files in the product bag are skipped.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"tmbulk/internal/httpx"
)

// File is one downloadable data file in a product.
type File struct {
	ProductID   string
	Name        string
	Size        int64
	DownloadURL string
	ReleaseDate string
}

// Product is one bulk-data product with its data files.
type Product struct {
	ID           string
	Title        string
	Frequency    string
	LastModified string
	Files        []File
}

// Client queries the product search endpoint.
type Client struct {
	http    *httpx.Client
	baseURL string
}

// Options configures a Client. APIKey is optional; when set it is sent as
// X-API-KEY on every request.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("catalog: base URL must not be empty")
	}
	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	if opts.APIKey != "" {
		hdr.Set("X-API-KEY", opts.APIKey)
	}
	return &Client{
		http: httpx.NewClient(httpx.Config{
			Timeout:     opts.Timeout,
			MaxRetries:  3,
			BaseHeaders: hdr,
		}),
		baseURL: opts.BaseURL,
	}, nil
}

// Wire shapes for the search response. Only the fields the pipeline needs
// are decoded.
type searchResponse struct {
	Count    int           `json:"count"`
	Products []productWire `json:"bulkDataProductBag"`
}

type productWire struct {
	Identifier   string `json:"productIdentifier"`
	Title        string `json:"productTitleText"`
	Frequency    string `json:"productFrequencyText"`
	LastModified string `json:"lastModifiedDateTime"`
	FileBag      struct {
		Files []fileWire `json:"fileDataBag"`
	} `json:"productFileBag"`
}

type fileWire struct {
	Name        string `json:"fileName"`
	Size        int64  `json:"fileSize"`
	DownloadURI string `json:"fileDownloadURI"`
	TypeText    string `json:"fileTypeText"`
	ReleaseDate string `json:"fileReleaseDate"`
}

// Products fetches the latest trademark products and their data files.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	q := url.Values{}
	q.Set("facets", "true")
	q.Set("latest", "true")
	q.Set("labels", "Trademark")

	resp, err := c.http.Get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("catalog: search products: %w", err)
	}
	defer resp.Body.Close()

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("catalog: decode search response: %w", err)
	}

	products := make([]Product, 0, len(body.Products))
	for _, pw := range body.Products {
		p := Product{
			ID:           pw.Identifier,
			Title:        pw.Title,
			Frequency:    pw.Frequency,
			LastModified: pw.LastModified,
		}
		for _, fw := range pw.FileBag.Files {
			if fw.TypeText != "Data" {
				continue
			}
			p.Files = append(p.Files, File{
				ProductID:   pw.Identifier,
				Name:        fw.Name,
				Size:        fw.Size,
				DownloadURL: fw.DownloadURI,
				ReleaseDate: fw.ReleaseDate,
			})
		}
		products = append(products, p)
	}
	return products, nil
}

// Product returns the single product with the given identifier, or an error
// when the catalog does not list it.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	products, err := c.Products(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("catalog: product %q not listed", id)
}
