// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ichnaea implements a coarse background position source: nearby Wi-Fi access points are
// geolocated by an Ichnaea-compatible API.
package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/arrival-alarm/internal/geo"
	"github.com/wneessen/arrival-alarm/internal/http"
)

const (
	APIEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	name          = "ichnaea"
)

// Scanner lists wireless interfaces and the access points they see. *wifi.Client satisfies it.
type Scanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// Locator geolocates the host by its visible Wi-Fi access points.
type Locator struct {
	http     *http.Client
	wlan     Scanner
	endpoint string
	now      func() time.Time
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns a Locator using the system's wireless interfaces.
func New(client *http.Client) (*Locator, error) {
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return NewWithScanner(client, wlan, APIEndpoint)
}

// NewWithScanner returns a Locator that scans with wlan and queries endpoint.
func NewWithScanner(client *http.Client, wlan Scanner, endpoint string) (*Locator, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if wlan == nil {
		return nil, errors.New("wifi scanner is required")
	}
	return &Locator{
		http:     client,
		wlan:     wlan,
		endpoint: endpoint,
		now:      time.Now,
	}, nil
}

func (l *Locator) Name() string {
	return name
}

// Locate performs a single Wi-Fi based lookup. If no access points are visible the API falls back to
// IP based geolocation.
func (l *Locator) Locate(ctx context.Context) (geo.Fix, error) {
	wifiList, err := l.wifiAccessPoints()
	if err != nil {
		return geo.Fix{}, fmt.Errorf("failed to retrieve wifi list: %w", err)
	}

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	result := new(APIResult)
	if _, err = l.http.PostJSON(ctx, l.endpoint, req, result, lookupTimeout); err != nil {
		return geo.Fix{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return geo.Fix{
		Point:    geo.Point{Lat: result.Location.Latitude, Lon: result.Location.Longitude},
		At:       l.now(),
		Accuracy: result.Accuracy,
		Source:   name,
	}, nil
}

func (l *Locator) wifiAccessPoints() ([]WirelessNetwork, error) {
	var list []WirelessNetwork

	ifaces, err := l.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := l.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}
