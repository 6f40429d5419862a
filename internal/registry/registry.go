// Package registry implements the overlay's Service Registry: a
// non-persistent map of locally-hosted service types to their
// ServiceInfo, per spec.md §6 ("the service registry does not [persist]
// across restarts").
//
// Grounded on the teacher's internal/transport.TCPTransport.peers field: a
// mutex-guarded map with no backing store.
package registry

import (
	"sync"

	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// Registry is the local node's service-type → ServiceInfo map.
type Registry struct {
	mu       sync.Mutex
	services map[string]protocol.ServiceInfo
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{services: make(map[string]protocol.ServiceInfo)}
}

// Register installs or replaces the ServiceInfo for info.ServiceType.
func (r *Registry) Register(info protocol.ServiceInfo) error {
	if info.ServiceType == "" {
		return locneterrors.New(locneterrors.BadRequest, "service type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[info.ServiceType] = info
	return nil
}

// Deregister removes the ServiceInfo for serviceType. Fails with NotFound if
// no such service is registered.
func (r *Registry) Deregister(serviceType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[serviceType]; !ok {
		return locneterrors.Newf(locneterrors.NotFound, "service %s not registered", serviceType)
	}
	delete(r.services, serviceType)
	return nil
}

// Get returns the ServiceInfo registered for serviceType, if any.
func (r *Registry) Get(serviceType string) (protocol.ServiceInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.services[serviceType]
	return info, ok
}

// List returns every currently registered ServiceInfo.
func (r *Registry) List() []protocol.ServiceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.ServiceInfo, 0, len(r.services))
	for _, info := range r.services {
		out = append(out, info)
	}
	return out
}
