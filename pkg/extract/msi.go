// pkg/extract/msi.go - functions for extracting metadata from MSI files.

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const msiPropertyScript = `
$msi = '%s'
$WindowsInstaller = New-Object -ComObject WindowsInstaller.Installer
$db = $WindowsInstaller.OpenDatabase($msi,0)
$view = $db.OpenView('SELECT * FROM Property')
$view.Execute()
$pairs = @{}
while($rec = $view.Fetch()) { $pairs[$rec.StringData(1)] = $rec.StringData(2) }
[PSCustomObject]@{
  ProductName    = $pairs["ProductName"]
  ProductVersion = $pairs["ProductVersion"]
  Manufacturer   = $pairs["Manufacturer"]
  Comments       = $pairs["Comments"]
} | ConvertTo-Json -Compress
`

// msiMetadata reads the Property table of an MSI through the Windows
// Installer COM object.
func msiMetadata(ctx context.Context, msiPath string) (Metadata, error) {
	if runtime.GOOS != "windows" {
		return Metadata{}, nil
	}
	script := fmt.Sprintf(msiPropertyScript, strings.ReplaceAll(msiPath, "'", "''"))
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script).Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("reading MSI properties: %w", err)
	}
	return parseMsiProperties(out)
}

func parseMsiProperties(out []byte) (Metadata, error) {
	var props map[string]*string
	if err := json.Unmarshal(out, &props); err != nil {
		return Metadata{}, fmt.Errorf("decoding MSI properties: %w", err)
	}
	get := func(k string) string {
		if v := props[k]; v != nil {
			return strings.TrimSpace(*v)
		}
		return ""
	}
	return Metadata{
		ProductName: get("ProductName"),
		Version:     get("ProductVersion"),
		Publisher:   get("Manufacturer"),
		Description: get("Comments"),
	}, nil
}
