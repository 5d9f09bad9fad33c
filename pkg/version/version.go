// pkg/version/version.go - build information for cimisync binaries.

package version

import (
	"fmt"
)

// These values are private which ensures they can only be set with the build flags.
var (
	version   = "unknown"
	branch    = "unknown"
	revision  = "unknown"
	goVersion = "unknown"
	buildDate = "unknown"
	appName   = "cimisync"
)

// Info is a structure with version build information about the current application.
type Info struct {
	Version   string `json:"version"`
	Branch    string `json:"branch"`
	Revision  string `json:"revision"`
	GoVersion string `json:"go_version"`
	BuildDate string `json:"build_date"`
}

// Build returns a structure with the current build information.
func Build() Info {
	return Info{
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		GoVersion: goVersion,
		BuildDate: buildDate,
	}
}

// UserAgent is sent with every outbound HTTP request.
func UserAgent() string {
	return appName + "/" + version
}

// Print outputs the application name and version string.
func Print() {
	fmt.Printf("%s %s\n", appName, Build().Version)
}

// PrintFull prints the application name and detailed version information.
func PrintFull() {
	v := Build()
	fmt.Printf("%s %s\n", appName, v.Version)
	fmt.Printf("  branch: \t%s\n", v.Branch)
	fmt.Printf("  revision: \t%s\n", v.Revision)
	fmt.Printf("  build date: \t%s\n", v.BuildDate)
	fmt.Printf("  go version: \t%s\n", v.GoVersion)
}
