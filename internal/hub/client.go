package hub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AppKeyHeader authenticates every CLIP request, including the event
// stream.
const AppKeyHeader = "hue-application-key"

// CatalogDevice is one entry from the hub's authoritative device list.
type CatalogDevice struct {
	RID         string
	Name        string
	ProductType string
}

// Client talks to the hub's CLIP REST surface. The event stream has its
// own client in internal/stream; this one covers the out-of-band
// fetches (device catalog, connectivity snapshots).
type Client struct {
	baseURL string
	key     KeyProvider
	http    *http.Client
}

// KeyProvider yields the current application key per request, so a key
// rotated on disk is picked up without rebuilding the client.
type KeyProvider interface {
	Key() string
}

func NewClient(bridgeIP string, key KeyProvider, verifyTLS bool) *Client {
	transport := &http.Transport{
		// Hue bridges ship a self-signed certificate; verification is
		// opt-in.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !verifyTLS},
	}
	return &Client{
		baseURL: fmt.Sprintf("https://%s", bridgeIP),
		key:     key,
		http: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
	}
}

// FetchDevices returns the authoritative device catalog.
func (c *Client) FetchDevices(ctx context.Context) ([]CatalogDevice, error) {
	var body struct {
		Data []struct {
			ID       string `json:"id"`
			IDV1     string `json:"id_v1"`
			Type     string `json:"type"`
			Metadata struct {
				Name string `json:"name"`
			} `json:"metadata"`
			ProductData struct {
				ProductName string `json:"product_name"`
			} `json:"product_data"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/clip/v2/resource/device", &body); err != nil {
		return nil, err
	}

	var devices []CatalogDevice
	for _, item := range body.Data {
		if item.ID == "" {
			continue
		}
		name := item.Metadata.Name
		if name == "" {
			name = item.IDV1
		}
		if name == "" {
			name = item.ID
		}
		productType := item.ProductData.ProductName
		if productType == "" {
			productType = item.Type
		}
		if productType == "" {
			productType = "device"
		}
		devices = append(devices, CatalogDevice{RID: item.ID, Name: name, ProductType: productType})
	}
	return devices, nil
}

// ConnectivityStatus is a point-in-time connectivity reading for one
// resource.
type ConnectivityStatus struct {
	RID    string `json:"rid"`
	Status string `json:"status"`
}

// FetchConnectivity returns the current zigbee connectivity snapshot.
func (c *Client) FetchConnectivity(ctx context.Context) ([]ConnectivityStatus, error) {
	var body struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/clip/v2/resource/zigbee_connectivity", &body); err != nil {
		return nil, err
	}

	var statuses []ConnectivityStatus
	for _, item := range body.Data {
		if item.ID == "" {
			continue
		}
		statuses = append(statuses, ConnectivityStatus{RID: item.ID, Status: item.Status})
	}
	return statuses, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(AppKeyHeader, c.key.Key())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hub request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub request %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
