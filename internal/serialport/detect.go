package serialport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/pilebones/go-udev/crawler"

	"facegate/internal/config"
	"facegate/internal/device"
)

var (
	// ErrNoPort is returned when auto-detection finds no candidate.
	ErrNoPort = errors.New("no matching serial port found")
	// ErrAmbiguousPort is returned when auto-detection finds more than one candidate.
	ErrAmbiguousPort = errors.New("more than one matching serial port found")
)

// maxVendorDepth bounds the walk from a tty node up to its USB device.
const maxVendorDepth = 8

// Port is a tty device that may carry the module.
type Port struct {
	Path     string            `json:"path" yaml:"path"`
	Type     device.SerialType `json:"type" yaml:"type"`
	VendorID string            `json:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	SysPath  string            `json:"sys_path,omitempty" yaml:"sys_path,omitempty"`
}

var typePrefixes = []struct {
	prefix string
	typ    device.SerialType
}{
	{"ttyACM", device.SerialUSB},
	{"ttyUSB", device.SerialUSB},
	{"ttyAMA", device.SerialUART},
	{"ttyTHS", device.SerialUART},
	{"ttyS", device.SerialUART},
}

// Classify maps a tty name such as "ttyACM0" or "/dev/ttyS1" to its link type.
func Classify(name string) (device.SerialType, bool) {
	name = path.Base(strings.TrimSpace(name))
	for _, candidate := range typePrefixes {
		rest, ok := strings.CutPrefix(name, candidate.prefix)
		if !ok || rest == "" {
			continue
		}
		if strings.Trim(rest, "0123456789") != "" {
			continue
		}
		return candidate.typ, true
	}
	return "", false
}

// Detect lists tty devices known to sysfs. USB ports carry the vendor id of
// their parent USB device.
func Detect(ctx context.Context) ([]Port, error) {
	return detect(ctx, os.DirFS("/"))
}

func detect(ctx context.Context, sysfs fs.FS) ([]Port, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, nil)

	var ports []Port
	for {
		select {
		case <-ctx.Done():
			close(quit)
			go drain(queue)
			return nil, ctx.Err()
		case err := <-errs:
			go drain(queue)
			return nil, fmt.Errorf("crawl devices: %w", err)
		case dev, ok := <-queue:
			if !ok {
				slices.SortFunc(ports, func(a, b Port) int { return strings.Compare(a.Path, b.Path) })
				return ports, nil
			}
			if port, ok := portFromEnv(sysfs, dev.KObj, dev.Env); ok {
				ports = append(ports, port)
			}
		}
	}
}

func drain(queue <-chan crawler.Device) {
	for range queue {
	}
}

func portFromEnv(sysfs fs.FS, kobj string, env map[string]string) (Port, bool) {
	name := env["DEVNAME"]
	if name == "" {
		return Port{}, false
	}
	typ, ok := Classify(name)
	if !ok {
		return Port{}, false
	}
	devPath := name
	if !strings.HasPrefix(devPath, "/dev/") {
		devPath = "/dev/" + path.Base(devPath)
	}
	port := Port{Path: devPath, Type: typ, SysPath: kobj}
	if typ == device.SerialUSB {
		port.VendorID = env["ID_VENDOR_ID"]
		if port.VendorID == "" && sysfs != nil {
			port.VendorID = vendorID(sysfs, kobj)
		}
		port.VendorID = strings.ToLower(strings.TrimSpace(port.VendorID))
	}
	return port, true
}

// vendorID walks from a sysfs device directory towards the root until it
// finds an idVendor attribute.
func vendorID(sysfs fs.FS, kobj string) string {
	dir := strings.TrimPrefix(path.Clean("/"+kobj), "/")
	if !strings.HasPrefix(dir, "sys/") {
		dir = path.Join("sys", dir)
	}
	for range maxVendorDepth {
		if dir == "." || dir == "sys" || dir == "/" {
			return ""
		}
		data, err := fs.ReadFile(sysfs, path.Join(dir, "idVendor"))
		if err == nil {
			return strings.TrimSpace(string(data))
		}
		dir = path.Dir(dir)
	}
	return ""
}

// Select picks the single port matching the configured link type and, for
// USB, vendor ids.
func Select(ports []Port, cfg config.Device) (Port, error) {
	want := device.SerialType(strings.ToLower(cfg.SerialType))
	var matches []Port
	for _, port := range ports {
		if port.Type != want {
			continue
		}
		if port.Type == device.SerialUSB && len(cfg.VendorIDs) > 0 && !slices.Contains(cfg.VendorIDs, port.VendorID) {
			continue
		}
		matches = append(matches, port)
	}
	switch len(matches) {
	case 0:
		if want == device.SerialUSB && len(cfg.VendorIDs) > 0 {
			return Port{}, fmt.Errorf("%w: %s with vendor id %s; set device.port or check the cable",
				ErrNoPort, want, strings.Join(cfg.VendorIDs, ", "))
		}
		return Port{}, fmt.Errorf("%w: %s; set device.port or check the cable", ErrNoPort, want)
	case 1:
		return matches[0], nil
	default:
		paths := make([]string, len(matches))
		for i, port := range matches {
			paths[i] = port.Path
		}
		return Port{}, fmt.Errorf("%w: %s; set device.port to one of them", ErrAmbiguousPort, strings.Join(paths, ", "))
	}
}

// Resolve returns the serial link to use. Without auto-detection the
// configured port is used as is.
func Resolve(ctx context.Context, cfg config.Device) (device.SerialConfig, error) {
	if !cfg.AutoDetect {
		return device.SerialConfig{Port: cfg.Port, Type: device.SerialType(cfg.SerialType)}, nil
	}
	ports, err := Detect(ctx)
	if err != nil {
		return device.SerialConfig{}, err
	}
	port, err := Select(ports, cfg)
	if err != nil {
		return device.SerialConfig{}, err
	}
	return device.SerialConfig{Port: port.Path, Type: port.Type}, nil
}
