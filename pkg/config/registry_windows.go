//go:build windows

// pkg/config/registry_windows.go - machine policy overrides from the registry.

package config

import (
	"log"

	"golang.org/x/sys/windows/registry"
)

// registryValues reads the string values under HKLM\RegistryPath. A missing
// key yields no overrides.
func registryValues() map[string]string {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, RegistryPath, registry.READ)
	if err != nil {
		return nil
	}
	defer key.Close()

	values := make(map[string]string, len(registryValueNames))
	for _, name := range registryValueNames {
		val, _, err := key.GetStringValue(name)
		if err != nil {
			if err != registry.ErrNotExist {
				log.Printf("Registry: failed to read %s: %v", name, err)
			}
			continue
		}
		values[name] = val
	}
	return values
}
