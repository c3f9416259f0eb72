package plugin_registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/serisow/craftvid/services/provider_service"
)

// PluginRegistry holds the speech and image providers by name.
type PluginRegistry struct {
	mu             sync.RWMutex
	speechServices map[string]provider_service.SpeechSynthesizer
	imageServices  map[string]provider_service.ImageGenerator
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		speechServices: make(map[string]provider_service.SpeechSynthesizer),
		imageServices:  make(map[string]provider_service.ImageGenerator),
	}
}

// RegisterSpeechService registers a new text-to-speech provider
func (pr *PluginRegistry) RegisterSpeechService(name string, service provider_service.SpeechSynthesizer) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.speechServices[name] = service
}

// GetSpeechService returns a text-to-speech provider by name
func (pr *PluginRegistry) GetSpeechService(name string) (provider_service.SpeechSynthesizer, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	service, ok := pr.speechServices[name]
	return service, ok
}

// RegisterImageService registers a new text-to-image provider
func (pr *PluginRegistry) RegisterImageService(name string, service provider_service.ImageGenerator) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.imageServices[name] = service
}

// GetImageService returns a text-to-image provider by name
func (pr *PluginRegistry) GetImageService(name string) (provider_service.ImageGenerator, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	service, ok := pr.imageServices[name]
	return service, ok
}

// ConfiguredSpeechService returns the named provider if it is registered
// and has credentials.
func (pr *PluginRegistry) ConfiguredSpeechService(name string) (provider_service.SpeechSynthesizer, error) {
	service, ok := pr.GetSpeechService(name)
	if !ok {
		return nil, fmt.Errorf("unknown speech service: %s", name)
	}
	if !service.Configured() {
		return nil, fmt.Errorf("speech service %s is not configured", name)
	}
	return service, nil
}

// ConfiguredImageService returns the named provider if it is registered
// and has credentials.
func (pr *PluginRegistry) ConfiguredImageService(name string) (provider_service.ImageGenerator, error) {
	service, ok := pr.GetImageService(name)
	if !ok {
		return nil, fmt.Errorf("unknown image service: %s", name)
	}
	if !service.Configured() {
		return nil, fmt.Errorf("image service %s is not configured", name)
	}
	return service, nil
}

// SpeechServiceNames lists the registered speech providers, sorted.
func (pr *PluginRegistry) SpeechServiceNames() []string {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	names := make([]string, 0, len(pr.speechServices))
	for name := range pr.speechServices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImageServiceNames lists the registered image providers, sorted.
func (pr *PluginRegistry) ImageServiceNames() []string {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	names := make([]string, 0, len(pr.imageServices))
	for name := range pr.imageServices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
