package service

import (
	"strconv"
	"strings"
	"time"

	"genieacs-portal/internal/device/domain"
	"genieacs-portal/internal/device/params"
)

// DeviceView is the customer dashboard for one device.
type DeviceView struct {
	ID              string   `json:"_id"`
	Tags            []string `json:"_tags"`
	Username        string   `json:"username"`
	Model           string   `json:"model"`
	SerialNumber    string   `json:"serialNumber"`
	Manufacturer    string   `json:"manufacturer"`
	PPPUsername     string   `json:"pppUsername"`
	PPPMac          string   `json:"pppMac"`
	PPPoEIP         string   `json:"pppoeIP"`
	TR069IP         string   `json:"tr069IP"`
	SSID            string   `json:"ssid"`
	SSID2G          string   `json:"ssid2G"`
	SSID5G          string   `json:"ssid5G"`
	UserConnected   string   `json:"userConnected"`
	UserConnected2G string   `json:"userConnected2G"`
	UserConnected5G string   `json:"userConnected5G"`
	RxPower         string   `json:"rxPower"`
	RxPowerClass    string   `json:"rxPowerClass"`
	Uptime          string   `json:"uptime"`
	RegisteredTime  string   `json:"registeredTime"`
	domain.Status
	LastInform string `json:"lastInform"`
}

// DeviceSummary is one row of the admin device list.
type DeviceSummary struct {
	ID               string   `json:"_id"`
	Tags             []string `json:"_tags"`
	Online           bool     `json:"online"`
	LastInform       string   `json:"lastInform"`
	PPPUsername      string   `json:"pppUsername"`
	PPPoEIP          string   `json:"pppoeIP"`
	RxPower          string   `json:"rxPower"`
	RxPowerClass     string   `json:"rxPowerClass"`
	Model            string   `json:"model"`
	SerialNumber     string   `json:"serialNumber"`
	SSID             string   `json:"ssid"`
	ConnectedDevices string   `json:"connectedDevices"`
	MAC              string   `json:"mac"`
	UserConnected2G  string   `json:"userConnected2G"`
	UserConnected5G  string   `json:"userConnected5G"`
}

// UnavailableView is shown when the device cannot be read.
func UnavailableView(username string) DeviceView {
	na := params.NotAvailable
	return DeviceView{
		Tags:            []string{},
		Username:        username,
		Model:           na,
		SerialNumber:    na,
		Manufacturer:    na,
		PPPUsername:     na,
		PPPMac:          na,
		PPPoEIP:         na,
		TR069IP:         na,
		SSID:            na,
		SSID2G:          na,
		SSID5G:          na,
		UserConnected:   "0",
		UserConnected2G: "0",
		UserConnected5G: "0",
		RxPower:         na,
		Uptime:          na,
		RegisteredTime:  na,
		Status:          domain.Status{Name: "unknown", Label: "Unknown", Color: "#99ccff"},
		LastInform:      na,
	}
}

func buildDeviceView(rec domain.Record, username string, now time.Time) DeviceView {
	lastInform := rec.LastInform()
	rx := params.Get(rec, params.RxPower)
	return DeviceView{
		ID:              rec.ID(),
		Tags:            tagsOf(rec),
		Username:        username,
		Model:           params.Model(rec),
		SerialNumber:    params.Serial(rec),
		Manufacturer:    params.Manufacturer(rec),
		PPPUsername:     params.Get(rec, params.PPPUsername),
		PPPMac:          params.Resolve(rec, params.MACPaths()),
		PPPoEIP:         params.Get(rec, params.PPPoEIP),
		TR069IP:         params.Get(rec, params.TR069IP),
		SSID:            params.Get(rec, params.SSID),
		SSID2G:          params.Get(rec, params.SSID2G),
		SSID5G:          params.Get(rec, params.SSID5G),
		UserConnected:   orDefault(params.Get(rec, params.UserConnected), "0"),
		UserConnected2G: orDefault(params.Get(rec, params.UserConnected2G), "0"),
		UserConnected5G: orDefault(params.Get(rec, params.UserConnected5G), "0"),
		RxPower:         rx,
		RxPowerClass:    string(domain.ClassifyRxPower(rx)),
		Uptime:          params.Get(rec, params.Uptime),
		RegisteredTime:  params.Get(rec, params.RegisteredTime),
		Status:          domain.StatusOf(domain.IsOnline(lastInform, now)),
		LastInform:      formatInform(lastInform),
	}
}

func buildSummary(rec domain.Record, now time.Time) DeviceSummary {
	lastInform := rec.LastInform()
	rx := orDefault(params.Get(rec, params.RxPower), params.NotAvailable)
	perBand := strconv.Itoa(perBandEstimate(params.Get(rec, params.ActiveDevices)))
	return DeviceSummary{
		ID:               rec.ID(),
		Tags:             tagsOf(rec),
		Online:           domain.IsOnline(lastInform, now),
		LastInform:       formatInform(lastInform),
		PPPUsername:      orDefault(params.Get(rec, params.PPPUsername), "Unknown"),
		PPPoEIP:          orDefault(params.Get(rec, params.PPPoEIP), params.NotAvailable),
		RxPower:          rx,
		RxPowerClass:     string(domain.ClassifyRxPower(rx)),
		Model:            orDefault(params.Model(rec), params.NotAvailable),
		SerialNumber:     orDefault(params.Serial(rec), params.NotAvailable),
		SSID:             params.Get(rec, params.SSID),
		ConnectedDevices: orDefault(params.Get(rec, params.ConnectedDevices), "0"),
		MAC:              orDefault(params.Resolve(rec, params.MACPaths()), params.NotAvailable),
		UserConnected2G:  perBand,
		UserConnected5G:  perBand,
	}
}

// perBandEstimate splits the active client count evenly over two bands, rounding up.
// Unreadable counts are treated as zero.
func perBandEstimate(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

func tagsOf(rec domain.Record) []string {
	if tags := rec.Tags(); tags != nil {
		return tags
	}
	return []string{}
}

func formatInform(t time.Time) string {
	if t.IsZero() {
		return params.NotAvailable
	}
	return t.UTC().Format(time.RFC3339)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
