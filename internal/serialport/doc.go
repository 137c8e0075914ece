// Package serialport finds the serial link of the face authentication module.
//
// Detect crawls existing tty devices through sysfs, Select applies the
// configured link type and vendor filter, and Watcher follows udev hotplug
// events so the CLI can report when the module is attached or removed.
package serialport
