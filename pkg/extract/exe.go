//go:build windows

// pkg/extract/exe.go - reading version resources embedded in Windows executables.

package extract

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	versionDLL                  = syscall.NewLazyDLL("version.dll")
	procGetFileVersionInfoSizeW = versionDLL.NewProc("GetFileVersionInfoSizeW")
	procGetFileVersionInfoW     = versionDLL.NewProc("GetFileVersionInfoW")
	procVerQueryValueW          = versionDLL.NewProc("VerQueryValueW")
)

type vsFixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// exeMetadata reads the product name, company, description and file
// version from the executable's version resource.
func exeMetadata(exePath string) (Metadata, error) {
	var md Metadata
	size, err := getFileVersionInfoSize(exePath)
	if err != nil {
		return md, err
	}
	info, err := getFileVersionInfo(exePath, size)
	if err != nil {
		return md, err
	}

	if ptr, n, err := verQueryValue(info, `\`); err == nil && n > 0 {
		fixed := (*vsFixedFileInfo)(ptr)
		md.Version = fmt.Sprintf("%d.%d.%d.%d",
			fixed.FileVersionMS>>16, fixed.FileVersionMS&0xffff,
			fixed.FileVersionLS>>16, fixed.FileVersionLS&0xffff)
	}

	ptr, n, err := verQueryValue(info, `\VarFileInfo\Translation`)
	if err != nil || n < 4 {
		return md, nil
	}
	lang := *(*uint16)(ptr)
	codepage := *(*uint16)(unsafe.Add(ptr, 2))
	prefix := fmt.Sprintf(`\StringFileInfo\%04x%04x\`, lang, codepage)

	md.ProductName = queryString(info, prefix+"ProductName")
	md.Publisher = queryString(info, prefix+"CompanyName")
	md.Description = queryString(info, prefix+"FileDescription")
	return md, nil
}

func queryString(block []byte, subBlock string) string {
	ptr, n, err := verQueryValue(block, subBlock)
	if err != nil || n == 0 {
		return ""
	}
	return syscall.UTF16ToString(unsafe.Slice((*uint16)(ptr), n))
}

func getFileVersionInfoSize(filename string) (uint32, error) {
	p, err := syscall.UTF16PtrFromString(filename)
	if err != nil {
		return 0, err
	}
	r0, _, e1 := procGetFileVersionInfoSizeW.Call(uintptr(unsafe.Pointer(p)), 0)
	if r0 == 0 {
		return 0, fmt.Errorf("GetFileVersionInfoSizeW failed for %s: %v", filename, e1)
	}
	return uint32(r0), nil
}

func getFileVersionInfo(filename string, size uint32) ([]byte, error) {
	info := make([]byte, size)
	p, err := syscall.UTF16PtrFromString(filename)
	if err != nil {
		return nil, err
	}
	r0, _, e1 := procGetFileVersionInfoW.Call(
		uintptr(unsafe.Pointer(p)),
		0,
		uintptr(size),
		uintptr(unsafe.Pointer(&info[0])))
	if r0 == 0 {
		return nil, fmt.Errorf("GetFileVersionInfoW failed for %s: %v", filename, e1)
	}
	return info, nil
}

func verQueryValue(block []byte, subBlock string) (unsafe.Pointer, uint32, error) {
	pSubBlock, err := syscall.UTF16PtrFromString(subBlock)
	if err != nil {
		return nil, 0, err
	}
	var buf unsafe.Pointer
	var size uint32
	r0, _, e1 := procVerQueryValueW.Call(
		uintptr(unsafe.Pointer(&block[0])),
		uintptr(unsafe.Pointer(pSubBlock)),
		uintptr(unsafe.Pointer(&buf)),
		uintptr(unsafe.Pointer(&size)))
	if r0 == 0 {
		return nil, 0, fmt.Errorf("VerQueryValueW failed for subBlock %s: %v", subBlock, e1)
	}
	return buf, size, nil
}
