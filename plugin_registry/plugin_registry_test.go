package plugin_registry_test

import (
	"reflect"
	"testing"

	"github.com/serisow/craftvid/plugin_registry"
	"github.com/serisow/craftvid/services/provider_service"
)

func TestRegisterAndGetSpeechService(t *testing.T) {
	registry := plugin_registry.NewPluginRegistry()

	mock := &provider_service.MockSpeechSynthesizer{}
	registry.RegisterSpeechService("elevenlabs", mock)

	service, ok := registry.GetSpeechService("elevenlabs")
	if !ok {
		t.Fatal("Expected to retrieve registered speech service, got false")
	}
	if service != mock {
		t.Errorf("Expected retrieved service to be the same as registered service")
	}
}

func TestGetUnregisteredServices(t *testing.T) {
	registry := plugin_registry.NewPluginRegistry()

	if _, ok := registry.GetSpeechService("unknown_service"); ok {
		t.Fatal("Expected to not find unregistered speech service, but got true")
	}
	if _, ok := registry.GetImageService("unknown_service"); ok {
		t.Fatal("Expected to not find unregistered image service, but got true")
	}

	_, err := registry.ConfiguredImageService("unknown_service")
	if err == nil || err.Error() != "unknown image service: unknown_service" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestConfiguredServices(t *testing.T) {
	registry := plugin_registry.NewPluginRegistry()
	registry.RegisterImageService("openai_image", &provider_service.MockImageGenerator{})
	registry.RegisterSpeechService("aws_polly", &provider_service.MockSpeechSynthesizer{Unconfigured: true})

	if _, err := registry.ConfiguredImageService("openai_image"); err != nil {
		t.Errorf("ConfiguredImageService() error = %v", err)
	}
	_, err := registry.ConfiguredSpeechService("aws_polly")
	if err == nil || err.Error() != "speech service aws_polly is not configured" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestServiceNamesAreSorted(t *testing.T) {
	registry := plugin_registry.NewPluginRegistry()
	registry.RegisterSpeechService("elevenlabs", &provider_service.MockSpeechSynthesizer{})
	registry.RegisterSpeechService("aws_polly", &provider_service.MockSpeechSynthesizer{})

	want := []string{"aws_polly", "elevenlabs"}
	if got := registry.SpeechServiceNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("SpeechServiceNames() = %v, want %v", got, want)
	}
	if got := registry.ImageServiceNames(); len(got) != 0 {
		t.Errorf("ImageServiceNames() = %v, want empty", got)
	}
}
