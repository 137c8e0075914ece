package serialport

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/pilebones/go-udev/netlink"

	"facegate/internal/config"
	"facegate/internal/device"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want device.SerialType
		ok   bool
	}{
		{"ttyACM0", device.SerialUSB, true},
		{"/dev/ttyUSB12", device.SerialUSB, true},
		{"ttyS1", device.SerialUART, true},
		{"ttyAMA0", device.SerialUART, true},
		{"ttyTHS2", device.SerialUART, true},
		{"ttyS", "", false},
		{"tty0", "", false},
		{"ttySAC0", "", false},
		{"console", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Classify(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPortFromEnvReadsVendorFromParent(t *testing.T) {
	sysfs := fstest.MapFS{
		"sys/devices/pci0000:00/usb1/1-2/idVendor": {Data: []byte("2AAD\n")},
	}
	kobj := "/sys/devices/pci0000:00/usb1/1-2/1-2:1.0/tty/ttyACM0"
	port, ok := portFromEnv(sysfs, kobj, map[string]string{"DEVNAME": "ttyACM0"})
	if !ok {
		t.Fatal("expected ttyACM0 to be a serial port")
	}
	if port.Path != "/dev/ttyACM0" || port.Type != device.SerialUSB {
		t.Fatalf("unexpected port %+v", port)
	}
	if port.VendorID != "2aad" {
		t.Fatalf("expected vendor 2aad, got %q", port.VendorID)
	}
}

func TestPortFromEnvSkipsNonSerial(t *testing.T) {
	if _, ok := portFromEnv(fstest.MapFS{}, "/sys/devices/virtual/tty/tty1", map[string]string{"DEVNAME": "tty1"}); ok {
		t.Fatal("expected tty1 to be ignored")
	}
	if _, ok := portFromEnv(fstest.MapFS{}, "/sys/devices/x", map[string]string{}); ok {
		t.Fatal("expected entry without DEVNAME to be ignored")
	}
}

func TestSelect(t *testing.T) {
	ports := []Port{
		{Path: "/dev/ttyACM0", Type: device.SerialUSB, VendorID: "2aad"},
		{Path: "/dev/ttyUSB0", Type: device.SerialUSB, VendorID: "0403"},
		{Path: "/dev/ttyS0", Type: device.SerialUART},
	}

	got, err := Select(ports, config.Device{SerialType: "usb", VendorIDs: []string{"2aad"}})
	if err != nil {
		t.Fatalf("Select usb: %v", err)
	}
	if got.Path != "/dev/ttyACM0" {
		t.Fatalf("expected ttyACM0, got %s", got.Path)
	}

	_, err = Select(ports, config.Device{SerialType: "usb"})
	if !errors.Is(err, ErrAmbiguousPort) {
		t.Fatalf("expected ErrAmbiguousPort, got %v", err)
	}

	got, err = Select(ports, config.Device{SerialType: "uart", VendorIDs: []string{"2aad"}})
	if err != nil || got.Path != "/dev/ttyS0" {
		t.Fatalf("Select uart = %+v, %v", got, err)
	}

	_, err = Select(ports[:2], config.Device{SerialType: "uart"})
	if !errors.Is(err, ErrNoPort) {
		t.Fatalf("expected ErrNoPort, got %v", err)
	}
}

func TestEventFromUEvent(t *testing.T) {
	ev, ok := eventFromUEvent(netlink.UEvent{
		Action: netlink.KObjAction("add"),
		KObj:   "/devices/pci0000:00/usb1/1-2/1-2:1.0/tty/ttyACM1",
		Env: map[string]string{
			"SUBSYSTEM":    "tty",
			"DEVNAME":      "/dev/ttyACM1",
			"ID_VENDOR_ID": "2aad",
		},
	})
	if !ok {
		t.Fatal("expected add event to be recognised")
	}
	if ev.Action != Attached || ev.Port.Path != "/dev/ttyACM1" || ev.Port.VendorID != "2aad" {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, ok = eventFromUEvent(netlink.UEvent{
		Action: netlink.KObjAction("remove"),
		Env:    map[string]string{"DEVPATH": "/devices/platform/serial8250/tty/ttyS3"},
	})
	if !ok || ev.Action != Detached || ev.Port.Path != "/dev/ttyS3" {
		t.Fatalf("unexpected remove event %+v, %v", ev, ok)
	}

	if _, ok := eventFromUEvent(netlink.UEvent{Action: netlink.KObjAction("change"), Env: map[string]string{"DEVNAME": "ttyACM0"}}); ok {
		t.Fatal("expected change event to be ignored")
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	w := NewWatcher(nil, nil)
	w.Stop()
	if w.Running() {
		t.Fatal("expected watcher to be stopped")
	}
}
