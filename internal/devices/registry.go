package devices

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrzor/matrix-streamer/internal/transport"
)

// UnknownName is shown for devices that have not advertised a name yet.
const UnknownName = "Unknown"

// DefaultTTL is how long a device stays listed without being seen again.
const DefaultTTL = 20 * time.Second

// Device is the merged view of one peripheral.
type Device struct {
	Address    string
	Name       string
	HasService bool
	LastSeen   time.Time
}

// Registry tracks discovered devices keyed by address.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // address -> device
	service uuid.UUID
}

// NewRegistry creates a registry that flags devices advertising service.
func NewRegistry(service uuid.UUID) *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		service: service,
	}
}

// Observe merges a scan result (command).
// A known name is never replaced by an empty one, and once a device has
// advertised the service it stays flagged. Returns true for a new address.
func (r *Registry) Observe(desc transport.DeviceDescriptor, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	hasService := desc.HasService(r.service)

	d, ok := r.devices[desc.Address]
	if !ok {
		name := desc.Name
		if name == "" {
			name = UnknownName
		}
		r.devices[desc.Address] = &Device{
			Address:    desc.Address,
			Name:       name,
			HasService: hasService,
			LastSeen:   now,
		}
		return true
	}

	if d.Name == UnknownName && desc.Name != "" {
		d.Name = desc.Name
	}
	if hasService {
		d.HasService = true
	}
	d.LastSeen = now
	return false
}

// Prune removes devices whose last sighting is ttl or more before now (command).
// Returns the removed addresses, sorted.
func (r *Registry) Prune(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for addr, d := range r.devices {
		if now.Sub(d.LastSeen) >= ttl {
			delete(r.devices, addr)
			removed = append(removed, addr)
		}
	}
	sort.Strings(removed)
	return removed
}

// Get returns a copy of the device at address (query).
func (r *Registry) Get(address string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[address]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// List returns copies of all devices sorted by address (query).
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// FirstWithService returns the lowest-addressed device advertising the service (query).
func (r *Registry) FirstWithService() (Device, bool) {
	for _, d := range r.List() {
		if d.HasService {
			return d, true
		}
	}
	return Device{}, false
}

// Len returns the number of tracked devices (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
