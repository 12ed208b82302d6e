package main

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Sysfs GPIO access
// ============================================================================
// One exported /sys/class/gpio pin, configured as an input. Edge detection is
// armed by writing to the pin's edge file; gpio_watch.go then polls the value
// fd for EPOLLPRI.
// ============================================================================

const (
	gpioBase     = "/sys/class/gpio"
	gpioExport   = gpioBase + "/export"
	gpioUnexport = gpioBase + "/unexport"
)

// exportSettle is how long to wait for udev to fix up group permissions on a
// freshly exported pin before giving up. Without this, non-root processes race
// udev and get EACCES.
const exportSettle = 2 * time.Second

// gpioPin is one exported sysfs GPIO input.
type gpioPin struct {
	number int
	value  *os.File
	buf    [1]byte
}

// openGpioPin exports the pin (if needed), sets it as an input and opens its
// value file.
func openGpioPin(number int) (*gpioPin, error) {
	valuePath := fmt.Sprintf("%s/gpio%d/value", gpioBase, number)

	if unix.Access(valuePath, unix.R_OK) != nil {
		if err := writeSysfs(gpioExport, fmt.Sprintf("%d", number)); err != nil {
			return nil, fmt.Errorf("export gpio%d: %w", number, err)
		}
		if err := waitAccessible(valuePath); err != nil {
			return nil, fmt.Errorf("gpio%d: %w", number, err)
		}
	}

	if err := writeSysfs(fmt.Sprintf("%s/gpio%d/direction", gpioBase, number), "in"); err != nil {
		unexportGpio(number)
		return nil, fmt.Errorf("gpio%d direction: %w", number, err)
	}

	f, err := os.OpenFile(valuePath, os.O_RDONLY, 0)
	if err != nil {
		unexportGpio(number)
		return nil, fmt.Errorf("gpio%d value: %w", number, err)
	}

	return &gpioPin{number: number, value: f}, nil
}

// setEdge arms or disarms edge detection on the pin.
func (p *gpioPin) setEdge(kind EdgeKind) error {
	return writeSysfs(fmt.Sprintf("%s/gpio%d/edge", gpioBase, p.number), kind.String())
}

// read returns the pin level. Read errors and malformed values are coerced to
// the nearest valid boolean (anything but '0' counts as high): level reads
// happen inside edge handlers, which have no error path.
func (p *gpioPin) read() bool {
	if _, err := p.value.ReadAt(p.buf[:], 0); err != nil {
		return false
	}
	return p.buf[0] != '0'
}

func (p *gpioPin) fd() int32 {
	return int32(p.value.Fd())
}

func (p *gpioPin) close() {
	p.value.Close()
	unexportGpio(p.number)
}

func unexportGpio(number int) {
	_ = writeSysfs(gpioUnexport, fmt.Sprintf("%d", number))
}

func writeSysfs(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(s))
	return err
}

// waitAccessible polls until the file is readable or exportSettle elapses.
func waitAccessible(path string) error {
	const step = time.Millisecond
	for waited := time.Duration(0); waited < exportSettle; waited += step {
		if unix.Access(path, unix.R_OK) == nil {
			return nil
		}
		time.Sleep(step)
	}
	return fmt.Errorf("%s: not accessible after export", path)
}
