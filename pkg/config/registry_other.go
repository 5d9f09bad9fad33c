//go:build !windows

package config

// registryValues has no policy source outside Windows.
func registryValues() map[string]string { return nil }
