package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prizzzz/leaseIQ/config"
)

// VehicleInfo is what the registry knows about a VIN. Fields it did not report are empty.
type VehicleInfo struct {
	VIN   string `json:"vin"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Year  string `json:"year,omitempty"`
	Trim  string `json:"trim,omitempty"`
}

// Empty reports whether the decode produced no vehicle details.
func (v VehicleInfo) Empty() bool {
	return v.Make == "" && v.Model == "" && v.Year == "" && v.Trim == ""
}

// VINDecoder resolves VINs with the NHTSA vPIC API. Successful decodes are
// cached for the life of the process.
type VINDecoder struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]VehicleInfo
}

func NewVINDecoder(cfg *config.VINConfig) *VINDecoder {
	return &VINDecoder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		cache: make(map[string]VehicleInfo),
	}
}

type vpicResponse struct {
	Results []struct {
		Variable string  `json:"Variable"`
		Value    *string `json:"Value"`
	} `json:"Results"`
}

// Decode looks up a VIN. On any failure it returns an empty VehicleInfo with the error.
func (d *VINDecoder) Decode(ctx context.Context, vin string) (VehicleInfo, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	info := VehicleInfo{VIN: vin}
	if vin == "" {
		return info, fmt.Errorf("empty VIN")
	}

	d.mu.RLock()
	cached, ok := d.cache[vin]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/DecodeVin/%s?format=json", d.baseURL, url.PathEscape(vin)), nil)
	if err != nil {
		return info, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return info, fmt.Errorf("vin lookup failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("vin lookup failed: status %d", resp.StatusCode)
	}

	var result vpicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return info, fmt.Errorf("failed to decode vin response: %w", err)
	}

	for _, r := range result.Results {
		if r.Value == nil {
			continue
		}
		value := strings.TrimSpace(*r.Value)
		if value == "" {
			continue
		}
		switch r.Variable {
		case "Make":
			info.Make = value
		case "Model":
			info.Model = value
		case "Model Year":
			info.Year = value
		case "Trim":
			info.Trim = value
		}
	}

	if !info.Empty() {
		d.mu.Lock()
		d.cache[vin] = info
		d.mu.Unlock()
	}
	return info, nil
}
