// Package registry registers the service with a Eureka registry over its REST API.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoAddress means no local interface has an address inside the configured subnet.
var ErrNoAddress = errors.New("no local address in subnet")

// Config describes the registry and this instance.
type Config struct {
	ServiceURL string
	AppName    string
	Subnet     string
	Port       int
}

// Registrar keeps one instance registered with Eureka.
type Registrar struct {
	cfg      Config
	client   *http.Client
	logger   *zap.Logger
	addrs    func() ([]net.Addr, error)
	ip       string
	instance instanceInfo
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registrar) { r.logger = l }
}

// WithHTTPClient sets the client used for registry calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registrar) { r.client = c }
}

// WithAddrs replaces the source of local interface addresses.
func WithAddrs(fn func() ([]net.Addr, error)) Option {
	return func(r *Registrar) { r.addrs = fn }
}

// New picks the instance address and prepares the registration payload.
// It returns ErrNoAddress when no interface address falls inside cfg.Subnet.
func New(cfg Config, opts ...Option) (*Registrar, error) {
	r := &Registrar{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: zap.NewNop(),
		addrs:  net.InterfaceAddrs,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg.ServiceURL = strings.TrimRight(r.cfg.ServiceURL, "/")

	addrs, err := r.addrs()
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}
	ip, err := FirstAddrInSubnet(addrs, cfg.Subnet)
	if err != nil {
		return nil, err
	}
	r.ip = ip.String()
	r.instance = newInstance(r.cfg, r.ip)
	return r, nil
}

// FirstAddrInSubnet returns the first non-loopback IPv4 address in addrs that lies inside cidr.
func FirstAddrInSubnet(addrs []net.Addr, cidr string) (net.IP, error) {
	_, subnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet %q: %w", cidr, err)
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		ip4 := ip.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		if subnet.Contains(ip4) {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrNoAddress, cidr)
}

// IP returns the registered instance address.
func (r *Registrar) IP() string { return r.ip }

// InstanceID returns the Eureka instance id, host:app:port.
func (r *Registrar) InstanceID() string { return r.instance.InstanceID }

// Register announces the instance as UP.
func (r *Registrar) Register(ctx context.Context) error {
	body, err := json.Marshal(struct {
		Instance instanceInfo `json:"instance"`
	}{r.instance})
	if err != nil {
		return fmt.Errorf("marshal instance: %w", err)
	}
	resp, err := r.do(ctx, http.MethodPost, r.appURL(), body)
	if err != nil {
		return err
	}
	if resp != http.StatusNoContent && resp != http.StatusOK {
		return fmt.Errorf("register %s: unexpected status %d", r.instance.InstanceID, resp)
	}
	r.logger.Info("Registered with service registry",
		zap.String("registry", r.cfg.ServiceURL),
		zap.String("instance", r.instance.InstanceID))
	return nil
}

// Heartbeat renews the lease. An instance unknown to the registry is registered again.
func (r *Registrar) Heartbeat(ctx context.Context) error {
	status, err := r.do(ctx, http.MethodPut, r.instanceURL()+"?status=UP", nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		r.logger.Info("Registry lost instance, registering again", zap.String("instance", r.instance.InstanceID))
		return r.Register(ctx)
	default:
		return fmt.Errorf("heartbeat %s: unexpected status %d", r.instance.InstanceID, status)
	}
}

// Deregister removes the instance from the registry.
func (r *Registrar) Deregister(ctx context.Context) error {
	status, err := r.do(ctx, http.MethodDelete, r.instanceURL(), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("deregister %s: unexpected status %d", r.instance.InstanceID, status)
	}
	r.logger.Info("Deregistered from service registry", zap.String("instance", r.instance.InstanceID))
	return nil
}

func (r *Registrar) appURL() string {
	return r.cfg.ServiceURL + "/eureka/apps/" + strings.ToUpper(r.cfg.AppName)
}

func (r *Registrar) instanceURL() string {
	return r.appURL() + "/" + r.instance.InstanceID
}

func (r *Registrar) do(ctx context.Context, method, url string, body []byte) (int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type portInfo struct {
	Port    int    `json:"$"`
	Enabled string `json:"@enabled"`
}

type dataCenterInfo struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
}

type leaseInfo struct {
	RenewalIntervalInSecs int `json:"renewalIntervalInSecs"`
	DurationInSecs        int `json:"durationInSecs"`
}

type instanceInfo struct {
	InstanceID       string            `json:"instanceId"`
	HostName         string            `json:"hostName"`
	App              string            `json:"app"`
	IPAddr           string            `json:"ipAddr"`
	VIPAddress       string            `json:"vipAddress"`
	SecureVIPAddress string            `json:"secureVipAddress"`
	Status           string            `json:"status"`
	Port             portInfo          `json:"port"`
	SecurePort       portInfo          `json:"securePort"`
	HomePageURL      string            `json:"homePageUrl"`
	StatusPageURL    string            `json:"statusPageUrl"`
	HealthCheckURL   string            `json:"healthCheckUrl"`
	DataCenterInfo   dataCenterInfo    `json:"dataCenterInfo"`
	LeaseInfo        leaseInfo         `json:"leaseInfo"`
	Metadata         map[string]string `json:"metadata"`
}

func newInstance(cfg Config, ip string) instanceInfo {
	base := fmt.Sprintf("http://%s:%d", ip, cfg.Port)
	return instanceInfo{
		InstanceID:       fmt.Sprintf("%s:%s:%d", ip, strings.ToLower(cfg.AppName), cfg.Port),
		HostName:         ip,
		App:              strings.ToUpper(cfg.AppName),
		IPAddr:           ip,
		VIPAddress:       strings.ToLower(cfg.AppName),
		SecureVIPAddress: strings.ToLower(cfg.AppName),
		Status:           "UP",
		Port:             portInfo{Port: cfg.Port, Enabled: "true"},
		SecurePort:       portInfo{Port: 443, Enabled: "false"},
		HomePageURL:      base + "/",
		StatusPageURL:    base + "/status",
		HealthCheckURL:   base + "/health",
		DataCenterInfo: dataCenterInfo{
			Class: "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo",
			Name:  "MyOwn",
		},
		LeaseInfo: leaseInfo{RenewalIntervalInSecs: 30, DurationInSecs: 90},
		Metadata:  map[string]string{"instance-uuid": uuid.NewString()},
	}
}
