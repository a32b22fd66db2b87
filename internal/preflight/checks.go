package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sys/unix"
)

const brokerProbeTimeout = 3 * time.Second

// CheckDirectoryAccess verifies a working directory exists and the daemon can
// read and write inside it.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return Result{Name: name, Detail: fmt.Sprintf("%s does not exist", path)}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s stat failed (%v)", path, err)}
	case !info.IsDir():
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a directory", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not writable (%v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s read/write ok", path)}
}

// CheckBroker probes the broker's TCP endpoint. It proves the address is
// reachable, not that credentials are valid; the daemon's dial covers that.
func CheckBroker(ctx context.Context, url string) Result {
	const name = "Broker"

	uri, err := amqp.ParseURI(url)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	addr := net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port))

	dialer := net.Dialer{Timeout: brokerProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%v)", addr, err)}
	}
	conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
}

// CheckDevice verifies that a hardware device node is present. Absence is
// reported, not fatal: benches run detached and hot-plug later.
func CheckDevice(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not present)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (stat: %v)", path, err)}
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (character device)", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}
